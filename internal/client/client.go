// Package client implements the API Client (component A): paginated
// retrieval of Paper records from an OParl-style list endpoint, with retry
// and exponential backoff, grounded on the teacher's paperless-ngx HTTP
// client (bearer-token session, JSON envelope decoding) generalized to
// OParl's system -> body -> list-endpoint indirection and
// "data" + "links.next" pagination envelope.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
	"github.com/ratsinfo/oparl-pipeline/internal/retry"
)

// Client is an OParl-style API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retryPolicy retry.Policy

	systemCache *systemObject
	bodyCache   *bodyObject
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(client *Client) { client.userAgent = ua }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(client *Client) { client.retryPolicy = p }
}

// NewClient creates a new OParl API client for the given system URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		userAgent: "oparl-pipeline/1.0",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryPolicy: retry.Policy{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			MaxDelay:    60 * time.Second,
			Retryable:   IsRetryable,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// systemObject and bodyObject mirror just enough of the OParl system/body
// objects to discover the paper list endpoint.
type systemObject struct {
	Body json.RawMessage `json:"body"`
}

type bodyObject struct {
	Paper string `json:"paper"`
}

type listEnvelope struct {
	Data  []paperPayload `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// paperPayload is the wire shape of one OParl Paper object.
type paperPayload struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Reference  string                  `json:"reference"`
	Date       string                  `json:"date"`
	PaperType  string                  `json:"paperType"`
	MainFile   *filePayload            `json:"mainFile"`
	AuxiliaryFile []filePayload        `json:"auxiliaryFile"`
}

type filePayload struct {
	AccessURL string `json:"accessUrl"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	FileName  string `json:"fileName"`
}

func (p paperPayload) toModel(city string) model.Paper {
	paper := model.Paper{
		ID:        p.ID,
		Name:      p.Name,
		Reference: p.Reference,
		PaperType: p.PaperType,
		City:      city,
	}
	if t, err := time.Parse(time.RFC3339, p.Date); err == nil {
		paper.Date = t
	}
	if p.MainFile != nil {
		mf := toFileDescriptor(*p.MainFile)
		paper.MainFile = &mf
		paper.Files = append(paper.Files, mf)
	}
	for _, f := range p.AuxiliaryFile {
		paper.Files = append(paper.Files, toFileDescriptor(f))
	}
	return paper
}

func toFileDescriptor(f filePayload) model.FileDescriptor {
	return model.FileDescriptor{
		AccessURL: f.AccessURL,
		MimeType:  f.MimeType,
		Size:      f.Size,
		FileName:  f.FileName,
	}
}

// doGet performs a GET request and decodes the JSON body into result,
// retried according to the client's policy.
func (c *Client) doGet(ctx context.Context, rawURL string, result interface{}) error {
	return c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &FetchError{Transient: true, Cause: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &FetchError{Transient: true, Cause: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &FetchError{
				StatusCode: resp.StatusCode,
				Transient:  isRetryableStatus(resp.StatusCode),
				Cause:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
			}
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return &FetchError{Transient: false, Cause: fmt.Errorf("decode response: %w", err)}
			}
		}
		return nil
	})
}

// resolveListEndpoint walks system -> body -> paper exactly as the original
// OParlClient does, caching both intermediate objects for the client's
// lifetime.
func (c *Client) resolveListEndpoint(ctx context.Context) (string, error) {
	if c.bodyCache != nil {
		return c.bodyCache.Paper, nil
	}

	if c.systemCache == nil {
		var sys systemObject
		if err := c.doGet(ctx, c.baseURL, &sys); err != nil {
			return "", err
		}
		c.systemCache = &sys
	}

	bodyURL, err := firstBodyURL(c.systemCache.Body)
	if err != nil {
		return "", err
	}

	var body bodyObject
	if err := c.doGet(ctx, bodyURL, &body); err != nil {
		return "", err
	}
	c.bodyCache = &body
	if body.Paper == "" {
		return "", fmt.Errorf("no paper list endpoint found in body object")
	}
	return body.Paper, nil
}

// firstBodyURL accepts either a single URL string or an array of URLs in
// the "body" field, as real OParl systems vary on this.
func firstBodyURL(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}
	return "", fmt.Errorf("no body URL found in system object")
}

func buildQuery(base string, windowStart, windowEnd time.Time) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if !windowStart.IsZero() {
		q.Set("modified_since", windowStart.Format(time.RFC3339))
	}
	if !windowEnd.IsZero() {
		q.Set("modified_until", windowEnd.Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
