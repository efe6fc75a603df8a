package playstore

// Edit is an open publishing transaction.
type Edit struct {
	ID                string `json:"id"`
	ExpiryTimeSeconds string `json:"expiryTimeSeconds,omitempty"`
}

// BinaryKind selects the package format being uploaded.
type BinaryKind string

const (
	BinaryBundle BinaryKind = "bundles"
	BinaryAPK    BinaryKind = "apks"
)

// Binary describes an uploaded package.
type Binary struct {
	VersionCode int64  `json:"versionCode"`
	SHA256      string `json:"sha256,omitempty"`
}

// Listing is the localized store listing text.
type Listing struct {
	Language         string `json:"language,omitempty"`
	Title            string `json:"title"`
	ShortDescription string `json:"shortDescription"`
	FullDescription  string `json:"fullDescription"`
	Video            string `json:"video,omitempty"`
}

// AppDetails holds app-level fields outside the localized listing.
type AppDetails struct {
	DefaultLanguage  string `json:"defaultLanguage,omitempty"`
	ContactEmail     string `json:"contactEmail,omitempty"`
	ContactWebsite   string `json:"contactWebsite,omitempty"`
	Category         string `json:"category,omitempty"`
	PrivacyPolicyURL string `json:"privacyPolicyUrl,omitempty"`
}

// DataSafety is the data-handling disclosure for an app.
type DataSafety struct {
	CollectsPersonalData     bool `json:"collectsPersonalData"`
	SharesPersonalData       bool `json:"sharesPersonalData"`
	EncryptedInTransit       bool `json:"encryptedInTransit"`
	DeletionRequestSupported bool `json:"deletionRequestSupported"`
}

// ImageType enumerates listing image categories.
type ImageType string

const (
	ImageIcon                 ImageType = "icon"
	ImageFeatureGraphic       ImageType = "featureGraphic"
	ImagePhoneScreenshots     ImageType = "phoneScreenshots"
	ImageSevenInchScreenshots ImageType = "sevenInchScreenshots"
	ImageTenInchScreenshots   ImageType = "tenInchScreenshots"
	ImageTVScreenshots        ImageType = "tvScreenshots"
	ImageWearScreenshots      ImageType = "wearScreenshots"
)

// Image is an uploaded listing image.
type Image struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Pricing is the app price in micro-units of Currency.
type Pricing struct {
	PriceMicros string `json:"priceMicros"`
	Currency    string `json:"currency"`
}

// LocalizedText is a per-locale string.
type LocalizedText struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Release statuses.
const (
	ReleaseStatusCompleted  = "completed"
	ReleaseStatusDraft      = "draft"
	ReleaseStatusInProgress = "inProgress"
	ReleaseStatusHalted     = "halted"
)

// TrackRelease is one release entry on a track.
type TrackRelease struct {
	Name         string          `json:"name,omitempty"`
	VersionCodes []string        `json:"versionCodes,omitempty"`
	Status       string          `json:"status,omitempty"`
	UserFraction float64         `json:"userFraction,omitempty"`
	ReleaseNotes []LocalizedText `json:"releaseNotes,omitempty"`
}

// Track is a distribution channel and its releases.
type Track struct {
	Track    string         `json:"track"`
	Releases []TrackRelease `json:"releases,omitempty"`
}

// Country is an ISO 3166 country code wrapper.
type Country struct {
	CountryCode string `json:"countryCode"`
}

// CountryAvailability restricts where a track is distributed.
type CountryAvailability struct {
	Countries   []Country `json:"countries"`
	RestOfWorld bool      `json:"restOfWorld"`
}
