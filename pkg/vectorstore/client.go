package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single index operation.
const DefaultTimeout = 2 * time.Minute

// Client is an Index backed by a vector-store file-upload HTTP API.
//
// Upsert uploads the document as a multipart file attached to the store;
// the returned file id is the indexed marker. Remove deletes by file id.
type Client struct {
	baseURL string
	storeID string
	apiKey  string
	http    *http.Client
}

var _ Index = (*Client)(nil)

// ClientConfig configures a vector-store client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string

	// StoreID identifies the target store.
	StoreID string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each request. Zero uses DefaultTimeout.
	Timeout time.Duration
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if strings.TrimSpace(c.StoreID) == "" {
		return fmt.Errorf("store id is required")
	}
	return nil
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		storeID: cfg.StoreID,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// uploadResponse is the API's file-upload reply.
type uploadResponse struct {
	ID string `json:"id"`
}

func (c *Client) Upsert(ctx context.Context, doc Document) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("path", doc.Path); err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}
	part, err := mw.CreateFormFile("file", doc.Path)
	if err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}
	if _, err := part.Write(doc.Content); err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1/stores/%s/files", c.baseURL, url.PathEscape(c.storeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: httpError(resp)}
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: fmt.Errorf("parse response: %w", err)}
	}
	if decoded.ID == "" {
		return "", &IndexError{Op: "Upsert", Path: doc.Path, Err: fmt.Errorf("response missing file id")}
	}
	return decoded.ID, nil
}

func (c *Client) Remove(ctx context.Context, marker string) error {
	if strings.TrimSpace(marker) == "" {
		return &IndexError{Op: "Remove", Err: fmt.Errorf("marker is required")}
	}

	endpoint := fmt.Sprintf("%s/v1/stores/%s/files/%s",
		c.baseURL, url.PathEscape(c.storeID), url.PathEscape(marker))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return &IndexError{Op: "Remove", Marker: marker, Err: err}
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &IndexError{Op: "Remove", Marker: marker, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return &IndexError{Op: "Remove", Marker: marker, Err: ErrMarkerNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &IndexError{Op: "Remove", Marker: marker, Err: httpError(resp)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// httpError summarizes a non-2xx response, keeping a short body excerpt for
// diagnostics.
func httpError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
}
