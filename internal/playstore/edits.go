package playstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// InsertEdit opens a new edit for pkg. A 404 means the app does not exist.
func (c *Client) InsertEdit(ctx context.Context, pkg string) (Edit, error) {
	var edit Edit
	if err := c.do(ctx, http.MethodPost, appPath(apiPrefix, pkg, "edits"), struct{}{}, &edit); err != nil {
		return Edit{}, err
	}
	if edit.ID == "" {
		return Edit{}, fmt.Errorf("playstore: insert edit for %s returned no id", pkg)
	}
	return edit, nil
}

// GetEdit fetches an edit, failing with 404 once it expired upstream.
func (c *Client) GetEdit(ctx context.Context, pkg, editID string) (Edit, error) {
	var edit Edit
	err := c.do(ctx, http.MethodGet, editPath(pkg, editID), nil, &edit)
	return edit, err
}

// DeleteEdit abandons an edit.
func (c *Client) DeleteEdit(ctx context.Context, pkg, editID string) error {
	return c.do(ctx, http.MethodDelete, editPath(pkg, editID), nil, nil)
}

// ValidateEdit asks the platform to check the edit's consistency.
func (c *Client) ValidateEdit(ctx context.Context, pkg, editID string) error {
	return c.do(ctx, http.MethodPost, editPath(pkg, editID)+":validate", nil, nil)
}

// CommitEdit publishes the edit's contents.
func (c *Client) CommitEdit(ctx context.Context, pkg, editID string) error {
	return c.do(ctx, http.MethodPost, editPath(pkg, editID)+":commit", nil, nil)
}

// UploadBinary streams a package into the edit. An empty editID uploads
// outside any edit, which registers pkg on the platform when it does not
// exist yet.
func (c *Client) UploadBinary(ctx context.Context, pkg, editID string, kind BinaryKind, media io.Reader) (Binary, error) {
	var path string
	if editID == "" {
		path = appPath(uploadPrefix, pkg, string(kind))
	} else {
		path = appPath(uploadPrefix, pkg, "edits", url.PathEscape(editID), string(kind))
	}
	var binary Binary
	if err := c.upload(ctx, path, "application/octet-stream", media, &binary); err != nil {
		return Binary{}, err
	}
	return binary, nil
}

// UpdateListing replaces the listing for a locale.
func (c *Client) UpdateListing(ctx context.Context, pkg, editID, locale string, listing Listing) (Listing, error) {
	listing.Language = locale
	var out Listing
	err := c.do(ctx, http.MethodPut, editPath(pkg, editID, "listings", url.PathEscape(locale)), listing, &out)
	return out, err
}

// PatchDetails updates app-level details.
func (c *Client) PatchDetails(ctx context.Context, pkg, editID string, details AppDetails) error {
	return c.do(ctx, http.MethodPatch, editPath(pkg, editID, "details"), details, nil)
}

// UpdateContentRating submits rating answers. The request shape is chosen
// by the caller.
func (c *Client) UpdateContentRating(ctx context.Context, pkg, editID string, rating any) error {
	return c.do(ctx, http.MethodPut, editPath(pkg, editID, "contentRating"), rating, nil)
}

// UpdateDataSafety submits the data-handling disclosure. It is app-level
// and applies immediately, outside the edit.
func (c *Client) UpdateDataSafety(ctx context.Context, pkg string, disclosure DataSafety) error {
	return c.do(ctx, http.MethodPost, appPath(apiPrefix, pkg, "dataSafety"), disclosure, nil)
}

// DeleteAllImages clears every image of imageType for a locale.
func (c *Client) DeleteAllImages(ctx context.Context, pkg, editID, locale string, imageType ImageType) error {
	return c.do(ctx, http.MethodDelete, editPath(pkg, editID, "listings", url.PathEscape(locale), string(imageType)), nil, nil)
}

// UploadImage adds one image of imageType for a locale.
func (c *Client) UploadImage(ctx context.Context, pkg, editID, locale string, imageType ImageType, contentType string, media io.Reader) (Image, error) {
	path := appPath(uploadPrefix, pkg, "edits", url.PathEscape(editID), "listings", url.PathEscape(locale), string(imageType))
	var envelope struct {
		Image Image `json:"image"`
	}
	if err := c.upload(ctx, path, contentType, media, &envelope); err != nil {
		return Image{}, err
	}
	return envelope.Image, nil
}

// UpdatePricing sets the app price.
func (c *Client) UpdatePricing(ctx context.Context, pkg, editID string, pricing Pricing) error {
	return c.do(ctx, http.MethodPut, editPath(pkg, editID, "pricing"), pricing, nil)
}

// GetTrack reads a track. An unused track reports 404.
func (c *Client) GetTrack(ctx context.Context, pkg, editID, track string) (Track, error) {
	var out Track
	err := c.do(ctx, http.MethodGet, editPath(pkg, editID, "tracks", url.PathEscape(track)), nil, &out)
	return out, err
}

// UpdateTrack replaces the track's release list.
func (c *Client) UpdateTrack(ctx context.Context, pkg, editID string, track Track) (Track, error) {
	var out Track
	err := c.do(ctx, http.MethodPut, editPath(pkg, editID, "tracks", url.PathEscape(track.Track)), track, &out)
	return out, err
}

// UpdateCountryAvailability restricts a track to the given countries.
func (c *Client) UpdateCountryAvailability(ctx context.Context, pkg, editID, track string, availability CountryAvailability) error {
	return c.do(ctx, http.MethodPut, editPath(pkg, editID, "countryAvailability", url.PathEscape(track)), availability, nil)
}
