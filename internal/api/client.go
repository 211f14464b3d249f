package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API root is configured.
const DefaultBaseURL = "http://localhost:5000"

// APIError is returned when the service answers with success=false.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: request was not successful", e.Endpoint)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// ErrInvalidBaseURL is returned by NewClient for unusable API roots.
var ErrInvalidBaseURL = errors.New("invalid API base URL")

// Client talks to the screening service.
type Client struct {
	httpclient *http.Client
	api        string
}

// NewClient creates a client for the service rooted at baseURL. A zero
// timeout leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	return &Client{
		httpclient: &http.Client{Timeout: timeout},
		api:        strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpclient = hc
	return c
}

// HTTPClient returns the underlying HTTP client, so that images served by
// the API can be fetched with the same transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpclient
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.api
}

// ResolveURL turns a path returned by the service (image_url, heatmap_url)
// into an absolute URL. Absolute URLs and data URIs are returned unchanged.
func (c *Client) ResolveURL(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "data:") {
		return p
	}
	return c.api + "/" + strings.TrimPrefix(p, "/")
}

// Predict uploads an image for analysis and stores the result in the
// service's history.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (Prediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Prediction{}, err
	}
	if _, err := io.Copy(fw, image); err != nil {
		return Prediction{}, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.WriteField("save_to_history", "true"); err != nil {
		return Prediction{}, err
	}
	if err := mw.Close(); err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apipath("api", "predict"), &body)
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var p Prediction
	if err := c.do(req, &p); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

// History lists stored predictions, newest first. The service returns
// either a bare list or {"predictions": [...]}.
func (c *Client) History(ctx context.Context) ([]Prediction, error) {
	var raw json.RawMessage
	if err := c.get(ctx, &raw, "api", "predictions", "history"); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var list []Prediction
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("history: unexpected data: %w", err)
	}
	return wrapped.Predictions, nil
}

// Prediction fetches one stored prediction.
func (c *Client) Prediction(ctx context.Context, id string) (Prediction, error) {
	var p Prediction
	if err := c.get(ctx, &p, "api", "predictions", url.PathEscape(id)); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

// PredictionImageURL returns the URL of the stored image for a prediction.
func (c *Client) PredictionImageURL(id string) string {
	return c.apipath("api", "predictions", url.PathEscape(id), "image")
}

// Models lists the available models and the active one.
func (c *Client) Models(ctx context.Context) (Models, error) {
	var m Models
	if err := c.get(ctx, &m, "api", "models"); err != nil {
		return Models{}, err
	}
	return m, nil
}

// SwitchModel activates a model version for subsequent predictions.
func (c *Client) SwitchModel(ctx context.Context, name, version string) error {
	payload, err := json.Marshal(map[string]string{"model_name": name, "version": version})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apipath("api", "models", "switch"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var ignored json.RawMessage
	return c.do(req, &ignored)
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.get(ctx, &h, "api", "health"); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) get(ctx context.Context, v any, path ...string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apipath(path...), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return unmarshalEnvelope(resp, req.URL.Path, v)
}

// build URL with path
func (c *Client) apipath(path ...string) string {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, c.api)
	for _, p := range path {
		parts = append(parts, strings.Trim(p, "/"))
	}
	return strings.Join(parts, "/")
}

// unmarshalEnvelope decodes a {success, data, error} response into v.
//
// Errors:
//   - *StatusError when the status code is not 2xx
//   - *APIError when success is false
//   - decoding errors when the body is not an envelope
func unmarshalEnvelope(resp *http.Response, endpoint string, v any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", endpoint, err)
	}

	var env Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			se.Message = env.Error
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: unexpected response: %w", endpoint, decodeErr)
	}
	if !env.Success {
		return &APIError{Endpoint: endpoint, Message: env.Error}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: unexpected data: %w", endpoint, err)
	}
	return nil
}
