package model

import "time"

// Frame types exchanged over the websocket connection.
const (
	FrameTypeJoin     = "join"
	FrameTypeJoined   = "joined"
	FrameTypeError    = "error"
	FrameTypeNewImage = "new-image"
)

type JoinFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type JoinedFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Payload is the unit broadcast into a room: a transport-encoded image with
// its dimensions and pin metadata. Immutable once constructed.
type Payload struct {
	Type        string `json:"type"`
	URL         string `json:"url"` // data-URL encoded image
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"sourceUrl"`
	PinID       string `json:"pinId"`
	Timestamp   int64  `json:"timestamp"` // milliseconds since epoch
}

// Credential is a provider access credential passed along with a publish
// request. A zero ExpiresAt means the token is a long-lived opaque token
// with no expiry and no refresh capability.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expires reports whether the credential carries a provider-stated expiry.
func (c Credential) Expires() bool {
	return !c.ExpiresAt.IsZero()
}

// Refreshable reports whether the credential can be refreshed.
func (c Credential) Refreshable() bool {
	return c.RefreshToken != ""
}

// TokenResponse mirrors the provider token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	Scope        string `json:"scope,omitempty"`
}

// ImageVariant is one size variant of a pin's image.
type ImageVariant struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ResourceDescriptor is the result of resolving a pin id: the preferred
// image variant plus metadata. Ephemeral, computed per request.
type ResourceDescriptor struct {
	Image       ImageVariant
	Title       string
	Description string
	SourceURL   string
}

// NormalizedImage is the output of the ingestion pipeline: image bytes
// packaged as a data URL in a consumer-renderable format.
type NormalizedImage struct {
	DataURL string
	MIME    string
	Width   int
	Height  int
}
