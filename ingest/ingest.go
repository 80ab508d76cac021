package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	// dimension decoding via image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/figpins/bridge/model"
	"github.com/rs/zerolog"
)

const (
	defaultMaxBodySize  = 50 << 20 // 50MB
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultReferer      = "https://www.pinterest.com/"
)

var ErrPayloadTooLarge = errors.New("image exceeds maximum allowed size")

// FetchExhaustedError means the primary URL and every generated fallback
// failed. Attempts records each URL tried, for diagnostics.
type FetchExhaustedError struct {
	Attempts []string
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("all image fetch strategies failed after %d attempts", len(e.Attempts))
}

type (
	// Fetcher obtains image bytes from hostile or unreliable origins and
	// normalizes them into a consumer-renderable data URL.
	Fetcher struct {
		logger    zerolog.Logger
		client    *http.Client
		userAgent string
		referer   string
		maxBody   int64
	}

	Config struct {
		Logger      *zerolog.Logger
		HTTPClient  *http.Client
		UserAgent   string
		Referer     string
		MaxBodySize int64
	}
)

func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{
		logger:    cfg.Logger.With().Str("component", "ingest").Logger(),
		client:    cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		maxBody:   cfg.MaxBodySize,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.referer == "" {
		f.referer = defaultReferer
	}
	if f.maxBody <= 0 {
		f.maxBody = defaultMaxBodySize
	}
	return f
}

var sizeSegment = regexp.MustCompile(`/\d+x/`)

// candidateURLs returns the fetch order: the original URL first, then, for
// URLs following the CDN path-based resizing convention, same-origin variants
// with the size segment substituted.
func candidateURLs(rawURL string) []string {
	urls := []string{rawURL}
	switch {
	case strings.Contains(rawURL, "/originals/"):
		for _, size := range []string{"/1200x/", "/736x/", "/564x/"} {
			urls = append(urls, strings.Replace(rawURL, "/originals/", size, 1))
		}
	case sizeSegment.MatchString(rawURL):
		loc := sizeSegment.FindStringIndex(rawURL)
		for _, size := range []string{"/1200x/", "/originals/", "/736x/"} {
			urls = append(urls, rawURL[:loc[0]]+size+rawURL[loc[1]:])
		}
	}
	return urls
}

// Fetch downloads the image at rawURL, trying CDN fallback variants when the
// primary fails, and returns the normalized result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (model.NormalizedImage, error) {
	var (
		body     []byte
		attempts []string
	)
	for _, u := range candidateURLs(rawURL) {
		attempts = append(attempts, u)
		b, err := f.get(ctx, u)
		if err != nil {
			if errors.Is(err, ErrPayloadTooLarge) {
				return model.NormalizedImage{}, err
			}
			f.logger.Debug().Err(err).Str("url", u).Msg("fetch attempt failed")
			continue
		}
		if len(attempts) > 1 {
			f.logger.Debug().Str("url", u).Msg("fallback URL succeeded")
		}
		body = b
		break
	}
	if body == nil {
		return model.NormalizedImage{}, &FetchExhaustedError{Attempts: attempts}
	}
	return Normalize(body)
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Referer", f.referer)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("origin returned status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > f.maxBody {
		return nil, ErrPayloadTooLarge
	}
	return b, nil
}

// Normalize sniffs the true encoding of image bytes, transcodes formats the
// consumer cannot render, and packages the result as a data URL.
func Normalize(b []byte) (model.NormalizedImage, error) {
	format := DetectFormat(b)
	if format == FormatUnknown {
		return model.NormalizedImage{}, ErrUnsupportedFormat
	}
	if !renderable(format) {
		var err error
		if b, format, err = Transcode(b, format); err != nil {
			return model.NormalizedImage{}, err
		}
	}

	img := model.NormalizedImage{
		MIME:    format.MIME(),
		DataURL: "data:" + format.MIME() + ";base64," + base64.StdEncoding.EncodeToString(b),
	}
	// dimensions are best-effort; callers fall back to resolver metadata
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(b)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	return img, nil
}
