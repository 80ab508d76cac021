package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/figpins/bridge/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	logger := zerolog.Nop()
	return New(Config{Logger: &logger, APIBase: ts.URL})
}

func pinHandler(t *testing.T, pin map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pin)
	}
}

func TestResolver_VariantPreference(t *testing.T) {
	variant := func(name string) map[string]any {
		return map[string]any{"url": "https://cdn.example/" + name + "/img.jpg", "width": 100, "height": 100}
	}

	tests := []struct {
		name     string
		images   map[string]any
		wantURL  string
		wantErr  error
		hasMedia bool
	}{
		{
			name: "1200x wins over originals and 600x",
			images: map[string]any{
				"600x":      variant("600x"),
				"originals": variant("originals"),
				"1200x":     variant("1200x"),
			},
			wantURL:  "https://cdn.example/1200x/img.jpg",
			hasMedia: true,
		},
		{
			name: "originals wins when 1200x is absent",
			images: map[string]any{
				"600x":      variant("600x"),
				"originals": variant("originals"),
			},
			wantURL:  "https://cdn.example/originals/img.jpg",
			hasMedia: true,
		},
		{
			name:     "600x is used when alone",
			images:   map[string]any{"600x": variant("600x")},
			wantURL:  "https://cdn.example/600x/img.jpg",
			hasMedia: true,
		},
		{
			name: "unranked variants picked deterministically",
			images: map[string]any{
				"736x": variant("736x"),
				"236x": variant("236x"),
			},
			wantURL:  "https://cdn.example/236x/img.jpg",
			hasMedia: true,
		},
		{
			name:    "no variants at all",
			images:  map[string]any{},
			wantErr: ErrResourceHasNoMedia,
		},
		{
			name:    "variant without url does not count",
			images:  map[string]any{"600x": map[string]any{"width": 100}},
			wantErr: ErrResourceHasNoMedia,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, pinHandler(t, map[string]any{
				"title": "a pin",
				"media": map[string]any{"images": tt.images},
			}))

			desc, err := r.Resolve(context.Background(), "pin-1", "token-1")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, desc.Image.URL)
		})
	}
}

func TestResolver_Metadata(t *testing.T) {
	r := newResolver(t, pinHandler(t, map[string]any{
		"title":       "Mood board",
		"description": "palette ideas",
		"link":        "https://example.com/original",
		"media": map[string]any{
			"images": map[string]any{
				"1200x": map[string]any{"url": "https://cdn.example/1200x/i.jpg", "width": 1200, "height": 900},
			},
		},
	}))

	desc, err := r.Resolve(context.Background(), "pin-1", "token-1")

	require.NoError(t, err)
	assert.Equal(t, "Mood board", desc.Title)
	assert.Equal(t, "palette ideas", desc.Description)
	assert.Equal(t, "https://example.com/original", desc.SourceURL)
	assert.Equal(t, model.ImageVariant{URL: "https://cdn.example/1200x/i.jpg", Width: 1200, Height: 900}, desc.Image)
}

func TestResolver_SourceURLFallback(t *testing.T) {
	r := newResolver(t, pinHandler(t, map[string]any{
		"media": map[string]any{
			"images": map[string]any{
				"600x": map[string]any{"url": "https://cdn.example/600x/i.jpg"},
			},
		},
	}))

	desc, err := r.Resolve(context.Background(), "abc123", "token-1")

	require.NoError(t, err)
	assert.Empty(t, desc.Title)
	assert.Equal(t, "https://pinterest.com/pin/abc123", desc.SourceURL)
}

func TestResolver_NotFound(t *testing.T) {
	r := newResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Pin not found"})
	})

	_, err := r.Resolve(context.Background(), "missing", "token-1")

	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestResolver_ProviderError(t *testing.T) {
	r := newResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "rate limited"})
	})

	_, err := r.Resolve(context.Background(), "pin-1", "token-1")

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.Status)
	assert.Equal(t, "rate limited", provErr.Message)
}
