package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mri-viewer/internal/viewport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	for _, u := range []string{"ftp://host", "localhost:5000", "http://"} {
		_, err := NewClient(u, 0)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, u)
	}

	c, err := NewClient("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestPredictUploadsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/predict", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("save_to_history"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scan.jpg", hdr.Filename)
		assert.Equal(t, "jpeg-bytes", string(data))

		writeJSON(w, http.StatusOK, `{
			"success": true,
			"data": {
				"id": "p-1",
				"timestamp": "2024-05-01T10:20:30.123456",
				"hasTumor": true,
				"confidence": 0.93,
				"tumor_percentage": 4.5,
				"image_url": "/api/predictions/p-1/image",
				"regions": [{"x": 10, "y": 20, "width": 30, "height": 40}]
			}
		}`)
	})

	p, err := c.Predict(context.Background(), "scan.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.True(t, p.HasTumor)
	assert.InDelta(t, 0.93, p.Confidence, 1e-12)
	assert.Equal(t, "Tumor detected", p.Verdict())
	assert.Equal(t, []viewport.AnnotationRegion{{X: 10, Y: 20, Width: 30, Height: 40}}, p.Regions)
	assert.Equal(t, 2024, p.Timestamp.Year())
	assert.Equal(t, c.BaseURL()+"/api/predictions/p-1/image", c.ResolveURL(p.ImageURL))
}

func TestEnvelopeFailureBecomesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": false, "error": "model not loaded"}`)
	})

	_, err := c.Predict(context.Background(), "x.png", strings.NewReader("x"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "model not loaded", apiErr.Message)
	assert.Equal(t, "/api/predict", apiErr.Endpoint)
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/predictions/missing" {
			writeJSON(w, http.StatusNotFound, `{"success": false, "error": "no such prediction"}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := c.Prediction(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "no such prediction", se.Message)

	_, err = c.Health(context.Background())
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Empty(t, se.Message)
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})
	_, err := c.Health(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestHistoryAcceptsBothShapes(t *testing.T) {
	body := `{"success": true, "data": [{"id": "a", "timestamp": 1714558830}, {"id": "b"}]}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/predictions/history", r.URL.Path)
		writeJSON(w, http.StatusOK, body)
	})

	items, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, int64(1714558830), items[0].Timestamp.Unix())
	assert.True(t, items[1].Timestamp.IsZero())

	body = `{"success": true, "data": {"predictions": [{"id": "c"}]}}`
	items, err = c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)

	body = `{"success": true, "data": null}`
	items, err = c.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestModelsAndSwitch(t *testing.T) {
	var switched map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/models":
			writeJSON(w, http.StatusOK, `{"success": true, "data": {
				"models": {"resnet": [{"version": "v2"}, {"version": "v1"}], "effnet": [{"version": "v1"}]},
				"current_model": "resnet",
				"current_version": "v2"
			}}`)
		case "/api/models/switch":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&switched))
			writeJSON(w, http.StatusOK, `{"success": true}`)
		default:
			http.NotFound(w, r)
		}
	})

	m, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"effnet", "resnet"}, m.Names())
	assert.Equal(t, "resnet", m.CurrentModel)

	require.NoError(t, c.SwitchModel(context.Background(), "effnet", "v1"))
	assert.Equal(t, map[string]string{"model_name": "effnet", "version": "v1"}, switched)
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Health(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveURL(t *testing.T) {
	c, err := NewClient("http://api.local:5000/", 0)
	require.NoError(t, err)

	assert.Equal(t, "http://api.local:5000/img/1.png", c.ResolveURL("/img/1.png"))
	assert.Equal(t, "http://api.local:5000/img/1.png", c.ResolveURL("img/1.png"))
	assert.Equal(t, "https://cdn/x.png", c.ResolveURL("https://cdn/x.png"))
	assert.Equal(t, "data:image/png;base64,AA==", c.ResolveURL("data:image/png;base64,AA=="))
	assert.Empty(t, c.ResolveURL(""))
	assert.Equal(t, "http://api.local:5000/api/predictions/a%20b/image", c.PredictionImageURL("a b"))
}

func TestTimeRoundTrip(t *testing.T) {
	var tm Time
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T10:20:30Z"`), &tm))
	out, err := json.Marshal(tm)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T10:20:30Z"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &tm))
}
