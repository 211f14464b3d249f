package viewport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mri-viewer/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h, color.RGBA{R: 90, G: 90, B: 90, A: 255})))
	return buf.Bytes()
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func waitLoad(t *testing.T, ch <-chan LoadResult) LoadResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("load did not complete")
		return LoadResult{}
	}
}

func TestLoadImageFromDataURI(t *testing.T) {
	vp := New()
	var invalidated atomic.Int32
	vp.OnInvalidate(func() { invalidated.Add(1) })

	vp.SetZoom(3)
	vp.PanBy(geometry.NewPoint2D(40, 40))
	invalidated.Store(0)

	res := waitLoad(t, vp.LoadImage(context.Background(), dataURI(encodePNG(t, 400, 300))))
	require.NoError(t, res.Err)

	size, ok := res.Dimensions()
	require.True(t, ok)
	assert.Equal(t, geometry.NewSize(400, 300), size)
	assert.Equal(t, 1.0, vp.Zoom(), "a new image resets the view")
	assert.Equal(t, geometry.Point2D{}, vp.Pan())
	assert.Equal(t, int32(1), invalidated.Load())
}

func TestLoadFailureKeepsPreviousImage(t *testing.T) {
	vp := New()
	vp.SetImage(solidImage(20, 10, color.Black), "first")
	vp.SetZoom(2)

	var reported []LoadResult
	vp.OnLoad(func(r LoadResult) { reported = append(reported, r) })

	res := waitLoad(t, vp.LoadImage(context.Background(), dataURI([]byte("not an image"))))
	assert.ErrorIs(t, res.Err, ErrDecode)
	_, ok := res.Dimensions()
	assert.False(t, ok)

	size, ok := vp.ImageSize()
	require.True(t, ok)
	assert.Equal(t, geometry.NewSize(20, 10), size)
	assert.Equal(t, 2.0, vp.Zoom(), "a failed load leaves the view alone")

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0].Err, ErrDecode)
}

func TestLoadImageOverHTTP(t *testing.T) {
	data := encodePNG(t, 32, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	vp := New(WithLoader(NewLoader(srv.Client())))
	res := waitLoad(t, vp.LoadImage(context.Background(), srv.URL+"/scan.png"))
	require.NoError(t, res.Err)
	assert.Equal(t, 32, res.Width)
	assert.Equal(t, 16, res.Height)

	res = waitLoad(t, vp.LoadImage(context.Background(), srv.URL+"/missing.png"))
	assert.ErrorIs(t, res.Err, ErrSource)
	assert.True(t, vp.HasImage())
}

func TestLoadImageFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 8, 6), 0o644))

	l := NewLoader(nil)
	img, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)

	img, err = l.Load(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Height)

	_, err = l.Load(context.Background(), filepath.Join(dir, "nope.png"))
	assert.ErrorIs(t, err, ErrSource)

	_, err = l.Load(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrSource)
}

func TestLoaderEnforcesSizeLimit(t *testing.T) {
	l := NewLoader(nil)
	l.MaxBytes = 16
	_, err := l.Load(context.Background(), dataURI(encodePNG(t, 64, 64)))
	assert.ErrorIs(t, err, ErrSource)
}

// forgeDimensions rewrites the IHDR of an encoded PNG to claim w x h.
func forgeDimensions(data []byte, w, h uint32) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	forged := forgeDimensions(encodePNG(t, 4, 4), 40000, 40000)

	_, err := Decode(forged)
	require.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "40000x40000")

	vp := New()
	vp.SetImage(solidImage(4, 4, color.RGBA{A: 255}), "prev.png")
	res := waitLoad(t, vp.LoadImage(context.Background(), dataURI(forged)))
	assert.ErrorIs(t, res.Err, ErrDecode)
	assert.Equal(t, "prev.png", vp.Frame().Image.Source)
}

func TestLoaderEnforcesPixelLimit(t *testing.T) {
	l := NewLoader(nil)
	l.MaxPixels = 15
	_, err := l.Load(context.Background(), dataURI(encodePNG(t, 4, 4)))
	assert.ErrorIs(t, err, ErrDecode)

	l.MaxPixels = 16
	img, err := l.Load(context.Background(), dataURI(encodePNG(t, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	data := encodePNG(t, 50, 50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	vp := New(WithLoader(NewLoader(srv.Client())))
	var loads atomic.Int32
	vp.OnLoad(func(LoadResult) { loads.Add(1) })

	pending := vp.LoadImage(context.Background(), srv.URL)
	vp.SetImage(solidImage(7, 7, color.White), "newer")
	close(release)

	res := waitLoad(t, pending)
	assert.ErrorIs(t, res.Err, ErrSuperseded)
	size, _ := vp.ImageSize()
	assert.Equal(t, geometry.NewSize(7, 7), size)
	assert.Zero(t, loads.Load())
}

func TestInteractionBeforeImageIsSafe(t *testing.T) {
	vp := New()
	vp.ZoomIn()
	vp.PanBy(geometry.NewPoint2D(10, 10))
	vp.PointerDown(geometry.NewPoint2D(1, 1))
	vp.PointerMove(geometry.NewPoint2D(4, 4))
	vp.PointerUp()

	s := NewRasterSurface(32, 32)
	stats := vp.Render(s)
	assert.False(t, stats.ImageDrawn)
	for _, b := range s.Image().Pix {
		require.Zero(t, b)
	}

	_, ok := vp.SurfaceToImage(geometry.NewSize(32, 32), geometry.Point2D{})
	assert.False(t, ok)
}

func TestAnnotationsAreCopied(t *testing.T) {
	vp := New()
	regions := []AnnotationRegion{{X: 1, Y: 2, Width: 3, Height: 4}}
	vp.SetAnnotations(regions)
	regions[0].X = 99

	got := vp.Annotations()
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].X)
}

func TestSurfaceToImageInvertsRender(t *testing.T) {
	vp := New()
	vp.SetImage(image.NewRGBA(image.Rect(0, 0, 200, 100)), "")
	vp.SetZoom(3)
	vp.PanBy(geometry.NewPoint2D(-12, 7))

	surface := geometry.NewSize(300, 300)
	f := vp.Frame()
	p := ImageToSurface(surface, f.Image, f.State, geometry.NewPoint2D(42, 17))
	back, ok := vp.SurfaceToImage(surface, p)
	require.True(t, ok)
	assert.InDelta(t, 42.0, back.X, 1e-9)
	assert.InDelta(t, 17.0, back.Y, 1e-9)
}

func TestCloseReleasesResources(t *testing.T) {
	vp := New()
	var invalidated atomic.Int32
	vp.OnInvalidate(func() { invalidated.Add(1) })
	vp.SetImage(solidImage(4, 4, color.White), "")
	invalidated.Store(0)

	vp.Close()
	assert.False(t, vp.HasImage())
	assert.False(t, vp.CapturesWheel())

	vp.ZoomIn()
	vp.Wheel(-1)
	vp.PanBy(geometry.NewPoint2D(1, 1))
	assert.Zero(t, invalidated.Load(), "listeners are detached")

	res := waitLoad(t, vp.LoadImage(context.Background(), "anything"))
	assert.ErrorIs(t, res.Err, ErrClosed)

	vp.Close()
}

func TestViewportsAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.ZoomIn()
	a.PanBy(geometry.NewPoint2D(5, 5))
	assert.Equal(t, 1.0, b.Zoom())
	assert.Equal(t, geometry.Point2D{}, b.Pan())
}

func TestReplaceBitmapKeepsView(t *testing.T) {
	v := New()
	assert.False(t, v.ReplaceBitmap("", solidImage(4, 4, color.White)), "no image yet")

	v.SetImage(solidImage(20, 10, color.Black), "scan")
	v.SetZoom(2)
	v.PanBy(geometry.NewPoint2D(3, 4))

	var invalidated int
	v.OnInvalidate(func() { invalidated++ })

	assert.False(t, v.ReplaceBitmap("scan", solidImage(10, 10, color.White)), "size must match")
	assert.False(t, v.ReplaceBitmap("other", solidImage(20, 10, color.White)), "source must match")
	require.True(t, v.ReplaceBitmap("scan", solidImage(20, 10, color.White)))
	assert.Equal(t, 1, invalidated)

	f := v.Frame()
	assert.Equal(t, "scan", f.Image.Source)
	assert.Equal(t, 2.0, f.State.Zoom)
	assert.Equal(t, geometry.NewPoint2D(3, 4), f.State.Pan)
	r, _, _, _ := f.Image.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}
