package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/figpins/bridge/model"
	"github.com/rs/zerolog"
)

const (
	defaultAPIBase        = "https://api.pinterest.com/v5"
	defaultRequestTimeout = 30 * time.Second
)

var (
	ErrResourceNotFound   = errors.New("pin not found")
	ErrResourceHasNoMedia = errors.New("pin has no image media")
)

// variantPreference ranks pin image variants, best first. Anything else is
// used only when none of these are available.
var variantPreference = []string{"1200x", "originals", "600x"}

// ProviderError is any non-2xx provider response other than a plain 404.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.Status)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Message)
}

type (
	// Resolver turns a pin id plus credential into a fetchable image URL and
	// metadata using the provider's pin API.
	Resolver struct {
		logger  zerolog.Logger
		client  *http.Client
		apiBase string
	}

	Config struct {
		Logger     *zerolog.Logger
		HTTPClient *http.Client
		APIBase    string
	}
)

func New(cfg Config) *Resolver {
	r := &Resolver{
		logger:  cfg.Logger.With().Str("component", "resolver").Logger(),
		client:  cfg.HTTPClient,
		apiBase: cfg.APIBase,
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: defaultRequestTimeout}
	}
	if r.apiBase == "" {
		r.apiBase = defaultAPIBase
	}
	return r
}

type pinResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Media       struct {
		Images map[string]model.ImageVariant `json:"images"`
	} `json:"media"`
}

// Resolve fetches the pin and selects the preferred image variant.
func (r *Resolver) Resolve(ctx context.Context, pinID, accessToken string) (model.ResourceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiBase+"/pins/"+pinID, nil)
	if err != nil {
		return model.ResourceDescriptor{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.ResourceDescriptor{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ResourceDescriptor{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return model.ResourceDescriptor{}, ErrResourceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Debug().
			Int("status", resp.StatusCode).
			Str("pinID", pinID).
			Msg("provider rejected pin lookup")
		return model.ResourceDescriptor{}, &ProviderError{
			Status:  resp.StatusCode,
			Message: errorMessage(body),
		}
	}

	var pin pinResponse
	if err = json.Unmarshal(body, &pin); err != nil {
		return model.ResourceDescriptor{}, err
	}

	variant, err := selectVariant(pin.Media.Images)
	if err != nil {
		return model.ResourceDescriptor{}, err
	}

	desc := model.ResourceDescriptor{
		Image:       variant,
		Title:       pin.Title,
		Description: pin.Description,
		SourceURL:   pin.Link,
	}
	if desc.SourceURL == "" {
		desc.SourceURL = "https://pinterest.com/pin/" + pinID
	}

	r.logger.Debug().
		Str("pinID", pinID).
		Str("imageURL", variant.URL).
		Msg("pin resolved")
	return desc, nil
}

// selectVariant picks the best available image variant, falling back to the
// lexicographically first remaining one so the choice is deterministic.
func selectVariant(images map[string]model.ImageVariant) (model.ImageVariant, error) {
	for _, name := range variantPreference {
		if v, ok := images[name]; ok && v.URL != "" {
			return v, nil
		}
	}
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := images[name]; v.URL != "" {
			return v, nil
		}
	}
	return model.ImageVariant{}, ErrResourceHasNoMedia
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		return e.Error
	}
	return ""
}
