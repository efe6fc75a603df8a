// Package playstoretest provides an in-memory publishing API for tests.
//
// Server speaks the same wire format as the real service closely enough
// for the client and every stage to run unmodified: edits hold a draft of
// the app state that replaces the live state on commit, the first upload
// outside an edit registers a new app, and every route counts its calls.
// Failures can be injected per route.
package playstoretest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kingrea/playpublish/internal/playstore"
)

// Route names used by Calls, Bodies and Fail.
const (
	RouteInsertEdit    = "edits.insert"
	RouteGetEdit       = "edits.get"
	RouteDeleteEdit    = "edits.delete"
	RouteValidateEdit  = "edits.validate"
	RouteCommitEdit    = "edits.commit"
	RouteUploadBinary  = "binaries.upload"
	RouteUploadNoEdit  = "binaries.upload-outside-edit"
	RouteListing       = "listings.update"
	RouteDetails       = "details.patch"
	RouteContentRating = "contentRating.update"
	RouteDataSafety    = "dataSafety.update"
	RouteDeleteImages  = "images.deleteall"
	RouteUploadImage   = "images.upload"
	RoutePricing       = "pricing.update"
	RouteGetTrack      = "tracks.get"
	RouteUpdateTrack   = "tracks.update"
	RouteCountries     = "countryAvailability.update"
	firstVersionCode   = 100
	fakeTokenDefault   = "test-token"
)

// AppState is a snapshot of one app's listing and distribution data.
type AppState struct {
	Package       string
	Listings      map[string]playstore.Listing
	Details       playstore.AppDetails
	ContentRating json.RawMessage
	DataSafety    *playstore.DataSafety
	Images        map[string][]UploadedImage
	Pricing       *playstore.Pricing
	Tracks        map[string]playstore.Track
	Countries     map[string]playstore.CountryAvailability
	VersionCodes  []int64
	Commits       int
}

// UploadedImage records an image upload.
type UploadedImage struct {
	ID          string
	ContentType string
	Size        int
}

func imageKey(locale string, imageType string) string {
	return locale + "/" + imageType
}

// ImagesFor returns the uploads for a locale and image type.
func (a AppState) ImagesFor(locale string, imageType playstore.ImageType) []UploadedImage {
	return a.Images[imageKey(locale, string(imageType))]
}

func newAppState(pkg string) AppState {
	return AppState{
		Package:   pkg,
		Listings:  map[string]playstore.Listing{},
		Images:    map[string][]UploadedImage{},
		Tracks:    map[string]playstore.Track{},
		Countries: map[string]playstore.CountryAvailability{},
	}
}

func (a AppState) clone() AppState {
	out := a
	out.Listings = make(map[string]playstore.Listing, len(a.Listings))
	for k, v := range a.Listings {
		out.Listings[k] = v
	}
	out.Images = make(map[string][]UploadedImage, len(a.Images))
	for k, v := range a.Images {
		out.Images[k] = append([]UploadedImage(nil), v...)
	}
	out.Tracks = make(map[string]playstore.Track, len(a.Tracks))
	for k, v := range a.Tracks {
		v.Releases = append([]playstore.TrackRelease(nil), v.Releases...)
		out.Tracks[k] = v
	}
	out.Countries = make(map[string]playstore.CountryAvailability, len(a.Countries))
	for k, v := range a.Countries {
		out.Countries[k] = v
	}
	out.VersionCodes = append([]int64(nil), a.VersionCodes...)
	if a.ContentRating != nil {
		out.ContentRating = append(json.RawMessage(nil), a.ContentRating...)
	}
	if a.DataSafety != nil {
		ds := *a.DataSafety
		out.DataSafety = &ds
	}
	if a.Pricing != nil {
		p := *a.Pricing
		out.Pricing = &p
	}
	return out
}

type edit struct {
	id    string
	pkg   string
	draft AppState
}

type failure struct {
	status int
	body   string
	// remaining < 0 means always.
	remaining int
}

// Server is a fake publishing API.
type Server struct {
	*httptest.Server

	// Token is the bearer credential the server accepts.
	Token string

	mu          sync.Mutex
	apps        map[string]*AppState
	edits       map[string]*edit
	calls       map[string]int
	bodies      map[string][][]byte
	failures    map[string]*failure
	nextVersion int64
}

// NewServer starts a fake API and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Token:       fakeTokenDefault,
		apps:        map[string]*AppState{},
		edits:       map[string]*edit{},
		calls:       map[string]int{},
		bodies:      map[string][][]byte{},
		failures:    map[string]*failure{},
		nextVersion: firstVersionCode,
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// NewClient returns a playstore client pointed at the fake.
func (s *Server) NewClient(t testing.TB) *playstore.Client {
	t.Helper()
	client, err := playstore.NewClient(playstore.Config{
		BaseURL:    s.URL,
		Tokens:     playstore.StaticToken(s.Token),
		HTTPClient: s.Client(),
	})
	if err != nil {
		t.Fatalf("playstore client: %v", err)
	}
	return client
}

// AddApp registers an existing app.
func (s *Server) AddApp(pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[pkg]; !ok {
		state := newAppState(pkg)
		s.apps[pkg] = &state
	}
}

// App returns a snapshot of the committed state.
func (s *Server) App(pkg string) (AppState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[pkg]
	if !ok {
		return AppState{}, false
	}
	return app.clone(), true
}

// Draft returns a snapshot of an open edit's draft.
func (s *Server) Draft(editID string) (AppState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edits[editID]
	if !ok {
		return AppState{}, false
	}
	return e.draft.clone(), true
}

// OpenEdits counts edits that were neither committed nor deleted.
func (s *Server) OpenEdits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

// ExpireEdit drops an edit as if its upstream lifetime ran out.
func (s *Server) ExpireEdit(editID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edits, editID)
}

// Calls returns how often a route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Bodies returns the JSON request bodies received on a route.
func (s *Server) Bodies(route string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.bodies[route]...)
}

// Fail makes the next times calls to route fail with status. times < 0
// fails every call.
func (s *Server) Fail(route string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &failure{status: status, body: errorBody(status, message), remaining: times}
}

func errorBody(status int, message string) string {
	envelope := map[string]any{"error": map[string]any{
		"code":    status,
		"message": message,
		"status":  strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
	}}
	data, _ := json.Marshal(envelope)
	return string(data)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.authenticate)

	api := "/androidpublisher/v3/applications/{pkg}"
	r.Post(api+"/edits", s.route(RouteInsertEdit, s.insertEdit))
	r.Get(api+"/edits/{editID}", s.route(RouteGetEdit, s.withEdit(s.getEdit)))
	r.Delete(api+"/edits/{editID}", s.route(RouteDeleteEdit, s.withEdit(s.deleteEdit)))
	r.Post(api+"/edits/{editID}", s.editAction)
	r.Put(api+"/edits/{editID}/listings/{locale}", s.route(RouteListing, s.withEdit(s.updateListing)))
	r.Patch(api+"/edits/{editID}/details", s.route(RouteDetails, s.withEdit(s.patchDetails)))
	r.Put(api+"/edits/{editID}/contentRating", s.route(RouteContentRating, s.withEdit(s.updateContentRating)))
	r.Post(api+"/dataSafety", s.route(RouteDataSafety, s.updateDataSafety))
	r.Delete(api+"/edits/{editID}/listings/{locale}/{imageType}", s.route(RouteDeleteImages, s.withEdit(s.deleteImages)))
	r.Put(api+"/edits/{editID}/pricing", s.route(RoutePricing, s.withEdit(s.updatePricing)))
	r.Get(api+"/edits/{editID}/tracks/{track}", s.route(RouteGetTrack, s.withEdit(s.getTrack)))
	r.Put(api+"/edits/{editID}/tracks/{track}", s.route(RouteUpdateTrack, s.withEdit(s.updateTrack)))
	r.Put(api+"/edits/{editID}/countryAvailability/{track}", s.route(RouteCountries, s.withEdit(s.updateCountries)))

	upload := "/upload/androidpublisher/v3/applications/{pkg}"
	r.Post(upload+"/{kind}", s.route(RouteUploadNoEdit, s.uploadOutsideEdit))
	r.Post(upload+"/edits/{editID}/{kind}", s.route(RouteUploadBinary, s.withEdit(s.uploadBinary)))
	r.Post(upload+"/edits/{editID}/listings/{locale}/{imageType}", s.route(RouteUploadImage, s.withEdit(s.uploadImage)))
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handler func(w http.ResponseWriter, r *http.Request, body []byte)

// route counts the call, records the body, applies injected failures and
// serializes handlers behind the server mutex.
func (s *Server) route(name string, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls[name]++
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			s.bodies[name] = append(s.bodies[name], body)
		}
		if f, ok := s.failures[name]; ok && f.remaining != 0 {
			if f.remaining > 0 {
				f.remaining--
			}
			writeRaw(w, f.status, f.body)
			return
		}
		h(w, r, body)
	}
}

type editHandler func(w http.ResponseWriter, r *http.Request, e *edit, body []byte)

func (s *Server) withEdit(h editHandler) handler {
	return func(w http.ResponseWriter, r *http.Request, body []byte) {
		e, ok := s.edits[chi.URLParam(r, "editID")]
		if !ok || e.pkg != chi.URLParam(r, "pkg") {
			writeError(w, http.StatusNotFound, "edit not found or expired")
			return
		}
		h(w, r, e, body)
	}
}

func (s *Server) editAction(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "editID")
	id, action, ok := strings.Cut(ref, ":")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown edit action")
		return
	}
	ctx := chi.RouteContext(r.Context())
	for i, key := range ctx.URLParams.Keys {
		if key == "editID" {
			ctx.URLParams.Values[i] = id
		}
	}
	switch action {
	case "validate":
		s.route(RouteValidateEdit, s.withEdit(s.validateEdit))(w, r)
	case "commit":
		s.route(RouteCommitEdit, s.withEdit(s.commitEdit))(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown edit action")
	}
}

func (s *Server) insertEdit(w http.ResponseWriter, r *http.Request, _ []byte) {
	pkg := chi.URLParam(r, "pkg")
	app, ok := s.apps[pkg]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Package not found: %s.", pkg))
		return
	}
	e := &edit{id: uuid.NewString(), pkg: pkg, draft: app.clone()}
	s.edits[e.id] = e
	writeJSON(w, http.StatusOK, playstore.Edit{ID: e.id, ExpiryTimeSeconds: "3600"})
}

func (s *Server) getEdit(w http.ResponseWriter, _ *http.Request, e *edit, _ []byte) {
	writeJSON(w, http.StatusOK, playstore.Edit{ID: e.id})
}

func (s *Server) deleteEdit(w http.ResponseWriter, _ *http.Request, e *edit, _ []byte) {
	delete(s.edits, e.id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validateEdit(w http.ResponseWriter, _ *http.Request, e *edit, _ []byte) {
	if problem := e.problem(); problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	writeJSON(w, http.StatusOK, playstore.Edit{ID: e.id})
}

func (s *Server) commitEdit(w http.ResponseWriter, _ *http.Request, e *edit, _ []byte) {
	if problem := e.problem(); problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	committed := e.draft.clone()
	committed.Commits++
	s.apps[e.pkg] = &committed
	delete(s.edits, e.id)
	writeJSON(w, http.StatusOK, playstore.Edit{ID: e.id})
}

// problem reports why the draft is inconsistent.
func (e *edit) problem() string {
	known := map[string]bool{}
	for _, code := range e.draft.VersionCodes {
		known[strconv.FormatInt(code, 10)] = true
	}
	for name, track := range e.draft.Tracks {
		for _, release := range track.Releases {
			for _, code := range release.VersionCodes {
				if !known[code] {
					return fmt.Sprintf("Track %s references unknown version code %s.", name, code)
				}
			}
		}
	}
	return ""
}

func (s *Server) uploadOutsideEdit(w http.ResponseWriter, r *http.Request, body []byte) {
	pkg := chi.URLParam(r, "pkg")
	if !validBinary(w, chi.URLParam(r, "kind"), body) {
		return
	}
	app, ok := s.apps[pkg]
	if !ok {
		state := newAppState(pkg)
		app = &state
		s.apps[pkg] = app
	}
	code := s.nextVersion
	s.nextVersion++
	app.VersionCodes = append(app.VersionCodes, code)
	writeJSON(w, http.StatusOK, playstore.Binary{VersionCode: code})
}

func (s *Server) uploadBinary(w http.ResponseWriter, r *http.Request, e *edit, body []byte) {
	if !validBinary(w, chi.URLParam(r, "kind"), body) {
		return
	}
	code := s.nextVersion
	s.nextVersion++
	e.draft.VersionCodes = append(e.draft.VersionCodes, code)
	writeJSON(w, http.StatusOK, playstore.Binary{VersionCode: code})
}

func validBinary(w http.ResponseWriter, kind string, body []byte) bool {
	if kind != string(playstore.BinaryBundle) && kind != string(playstore.BinaryAPK) {
		writeError(w, http.StatusNotFound, "unknown upload kind")
		return false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "APK or bundle is empty.")
		return false
	}
	return true
}

func (s *Server) updateListing(w http.ResponseWriter, r *http.Request, e *edit, body []byte) {
	var listing playstore.Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locale := chi.URLParam(r, "locale")
	listing.Language = locale
	e.draft.Listings[locale] = listing
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) patchDetails(w http.ResponseWriter, _ *http.Request, e *edit, body []byte) {
	var details playstore.AppDetails
	if err := json.Unmarshal(body, &details); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.draft.Details = details
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) updateContentRating(w http.ResponseWriter, _ *http.Request, e *edit, body []byte) {
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid rating payload")
		return
	}
	e.draft.ContentRating = append(json.RawMessage(nil), body...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateDataSafety(w http.ResponseWriter, r *http.Request, body []byte) {
	app, ok := s.apps[chi.URLParam(r, "pkg")]
	if !ok {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}
	var disclosure playstore.DataSafety
	if err := json.Unmarshal(body, &disclosure); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	app.DataSafety = &disclosure
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteImages(w http.ResponseWriter, r *http.Request, e *edit, _ []byte) {
	delete(e.draft.Images, imageKey(chi.URLParam(r, "locale"), chi.URLParam(r, "imageType")))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request, e *edit, body []byte) {
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "image is empty")
		return
	}
	key := imageKey(chi.URLParam(r, "locale"), chi.URLParam(r, "imageType"))
	image := UploadedImage{ID: uuid.NewString(), ContentType: r.Header.Get("Content-Type"), Size: len(body)}
	e.draft.Images[key] = append(e.draft.Images[key], image)
	writeJSON(w, http.StatusOK, map[string]playstore.Image{"image": {ID: image.ID}})
}

func (s *Server) updatePricing(w http.ResponseWriter, _ *http.Request, e *edit, body []byte) {
	var pricing playstore.Pricing
	if err := json.Unmarshal(body, &pricing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.draft.Pricing = &pricing
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request, e *edit, _ []byte) {
	name := chi.URLParam(r, "track")
	track, ok := e.draft.Tracks[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Track %s not found.", name))
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) updateTrack(w http.ResponseWriter, r *http.Request, e *edit, body []byte) {
	var track playstore.Track
	if err := json.Unmarshal(body, &track); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	track.Track = chi.URLParam(r, "track")
	e.draft.Tracks[track.Track] = track
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) updateCountries(w http.ResponseWriter, r *http.Request, e *edit, body []byte) {
	var availability playstore.CountryAvailability
	if err := json.Unmarshal(body, &availability); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.draft.Countries[chi.URLParam(r, "track")] = availability
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeRaw(w, status, errorBody(status, message))
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
