package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/imagerank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngWithAlpha(t *testing.T, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func palettedGIF(t *testing.T) []byte {
	palette := color.Palette{color.Transparent, color.RGBA{R: 0, G: 0, B: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, 8, 8), palette)
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 2)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestFetcher(opts ...Option) *Fetcher {
	base := []Option{WithBackoffUnit(time.Millisecond), WithTimeout(2 * time.Second)}
	return NewFetcher(append(base, opts...)...)
}

func serveBytes(data []byte, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "temporary file left behind: %s", e.Name())
	}
}

func TestFetch_NormalizesToJPEG(t *testing.T) {
	tests := []struct {
		name   string
		data   func(t *testing.T) []byte
		ctype  string
		format string
	}{
		{name: "png with alpha", data: func(t *testing.T) []byte { return pngWithAlpha(t, 16, 12) }, ctype: "image/png", format: "png"},
		{name: "paletted gif", data: palettedGIF, ctype: "image/gif", format: "gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(serveBytes(tt.data(t), tt.ctype))
			defer srv.Close()

			dir := t.TempDir()
			stem := filepath.Join(dir, core.ImageStemName(1))

			img, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/a", stem)
			require.NoError(t, err)
			assert.Equal(t, stem+".jpg", img.Path)
			assert.Equal(t, tt.format, img.SourceFormat)

			f, err := os.Open(img.Path)
			require.NoError(t, err)
			defer f.Close()
			_, format, err := image.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)

			assertNoTempFiles(t, dir)
		})
	}
}

func TestFetch_DropsAlphaKeepingColor(t *testing.T) {
	srv := httptest.NewServer(serveBytes(pngWithAlpha(t, 4, 4), "image/png"))
	defer srv.Close()

	stem := filepath.Join(t.TempDir(), "image_1")
	img, err := newTestFetcher().Fetch(context.Background(), srv.URL, stem)
	require.NoError(t, err)

	f, err := os.Open(img.Path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	require.NoError(t, err)

	r, g, b, _ := decoded.At(1, 1).RGBA()
	// Straight color (200,30,30) survives, not the premultiplied half-intensity value
	assert.InDelta(t, 200, r>>8, 12)
	assert.InDelta(t, 30, g>>8, 12)
	assert.InDelta(t, 30, b>>8, 12)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	payload := pngWithAlpha(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	stem := filepath.Join(t.TempDir(), "image_2")
	img, err := newTestFetcher().Fetch(context.Background(), srv.URL, stem)
	require.NoError(t, err)
	assert.FileExists(t, img.Path)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
			},
		},
		{
			name:    "not an image",
			handler: serveBytes([]byte("<html>blocked</html>"), "text/html"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrDecode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			dir := t.TempDir()
			img, err := newTestFetcher(WithMaxAttempts(3)).Fetch(context.Background(), srv.URL, filepath.Join(dir, "image_3"))
			require.Error(t, err)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, core.ErrFetchFailure)
			assert.Equal(t, int32(3), hits.Load())
			tt.check(t, err)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed fetch must leave nothing on disk")
		})
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(WithMaxAttempts(2)).Fetch(context.Background(), url, filepath.Join(t.TempDir(), "image_1"))
	assert.ErrorIs(t, err, core.ErrFetchFailure)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFetch_PayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(serveBytes(pngWithAlpha(t, 32, 32), "image/png"))
	defer srv.Close()

	_, err := newTestFetcher(WithMaxAttempts(1), WithMaxBytes(16)).Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "image_1"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetch_UnsupportedURL(t *testing.T) {
	for _, u := range []string{"data:image/png;base64,AAAA", "ftp://example.com/a.png", ""} {
		_, err := newTestFetcher().Fetch(context.Background(), u, filepath.Join(t.TempDir(), "image_1"))
		assert.ErrorIs(t, err, core.ErrFetchFailure)
		assert.ErrorIs(t, err, ErrUnsupportedURL)
	}
}

func TestFetch_Downscales(t *testing.T) {
	srv := httptest.NewServer(serveBytes(pngWithAlpha(t, 400, 100), "image/png"))
	defer srv.Close()

	img, err := newTestFetcher(WithMaxDimension(100)).Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "image_1"))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 25, img.Height)
}

func TestFetch_DigestIdentifiesContent(t *testing.T) {
	payload := pngWithAlpha(t, 8, 8)
	srv := httptest.NewServer(serveBytes(payload, "image/png"))
	defer srv.Close()

	dir := t.TempDir()
	f := newTestFetcher()
	a, err := f.Fetch(context.Background(), srv.URL, filepath.Join(dir, "image_1"))
	require.NoError(t, err)
	b, err := f.Fetch(context.Background(), srv.URL, filepath.Join(dir, "image_2"))
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "image_1"))
	assert.ErrorIs(t, err, core.ErrFetchFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFetcher_TimeoutLeavesSuppliedClientAlone(t *testing.T) {
	client := &http.Client{Timeout: time.Minute}

	f := NewFetcher(WithHTTPClient(client), WithTimeout(time.Second))
	assert.Same(t, client, f.client)
	assert.Equal(t, time.Minute, client.Timeout)

	f = NewFetcher(WithTimeout(time.Second), WithHTTPClient(client))
	assert.Equal(t, time.Minute, f.client.Timeout)

	f = NewFetcher(WithTimeout(3 * time.Second))
	assert.Equal(t, 3*time.Second, f.client.Timeout)

	f = NewFetcher()
	assert.Equal(t, DefaultTimeout, f.client.Timeout)
}
