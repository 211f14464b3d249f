package viewport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxBytes caps how much encoded data a single load may read.
	DefaultMaxBytes = 64 << 20
	// DefaultMaxPixels caps the decoded size of a single image.
	DefaultMaxPixels = 100_000_000
)

var (
	// ErrSource means the image bytes could not be obtained.
	ErrSource = errors.New("image source unavailable")
	// ErrDecode means the bytes were read but are not a supported image.
	ErrDecode = errors.New("image decode failed")
)

// Loader resolves an image source string to a decoded bitmap. Sources may be
// http(s) URLs, data URIs, file:// URLs or plain file paths.
type Loader struct {
	Client    *http.Client
	MaxBytes  int64
	MaxPixels int64
}

// NewLoader returns a loader using client for remote sources. A nil client
// uses http.DefaultClient.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{Client: client, MaxBytes: DefaultMaxBytes, MaxPixels: DefaultMaxPixels}
}

// Load fetches and decodes source.
func (l *Loader) Load(ctx context.Context, source string) (*SourceImage, error) {
	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}
	img, err := DecodeLimited(data, l.maxPixels())
	if err != nil {
		return nil, err
	}
	img.Source = source
	return img, nil
}

// Decode decodes encoded image bytes in any registered format, refusing
// images larger than DefaultMaxPixels.
func Decode(data []byte) (*SourceImage, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited decodes data after checking the header: images whose
// declared width*height exceeds maxPixels are rejected before any pixel
// buffer is allocated.
func DecodeLimited(data []byte, maxPixels int64) (*SourceImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return NewSourceImage(img, ""), nil
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("empty source")
	}

	switch {
	case strings.HasPrefix(source, "data:"):
		du, err := dataurl.DecodeString(source)
		if err != nil {
			return nil, fmt.Errorf("invalid data URI: %w", err)
		}
		if int64(len(du.Data)) > l.maxBytes() {
			return nil, fmt.Errorf("data URI exceeds %d bytes", l.maxBytes())
		}
		return du.Data, nil

	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return l.fetchHTTP(ctx, source)

	case strings.HasPrefix(source, "file://"):
		u, err := url.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL: %w", err)
		}
		return l.readFile(u.Path)
	}
	return l.readFile(source)
}

func (l *Loader) fetchHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", source, resp.Status)
	}
	return l.readLimited(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	limit := l.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return data, nil
}

func (l *Loader) maxPixels() int64 {
	if l.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return l.MaxPixels
}

func (l *Loader) maxBytes() int64 {
	if l.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return l.MaxBytes
}

// shortSource trims long sources (data URIs in particular) for log output.
func shortSource(source string) string {
	const limit = 64
	if len(source) <= limit {
		return source
	}
	return source[:limit] + "..."
}
