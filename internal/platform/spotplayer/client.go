package spotplayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client issues SpotPlayer licenses for purchased video courses.
type Client interface {
	IssueLicense(ctx context.Context, req *IssueRequest) (*License, error)
}

type IssueRequest struct {
	// Name is shown in the player and doubles as the license display name.
	Name string
	// CourseIDs are SpotPlayer course identifiers, not platform ids.
	CourseIDs []string
	// Watermark is burned into the video stream, typically the buyer phone.
	Watermark string
	Test      bool
}

type License struct {
	ID  string
	Key string
	URL string
}

type clientImpl struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(opts Options) Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &clientImpl{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
	}
}

type issueBody struct {
	Test      bool      `json:"test"`
	Name      string    `json:"name"`
	Course    []string  `json:"course"`
	Watermark watermark `json:"watermark"`
}

type watermark struct {
	Texts []watermarkText `json:"texts"`
}

type watermarkText struct {
	Text string `json:"text"`
}

type issueResponse struct {
	ID  string `json:"_id"`
	Key string `json:"key"`
	URL string `json:"url"`
}

func (c *clientImpl) IssueLicense(ctx context.Context, req *IssueRequest) (*License, error) {
	body := issueBody{
		Test:      req.Test,
		Name:      req.Name,
		Course:    req.CourseIDs,
		Watermark: watermark{Texts: []watermarkText{{Text: req.Watermark}}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal license request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/license/edit/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("$API", c.apiKey)
	httpReq.Header.Set("$LEVEL", "-1")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("license issuer returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode license response: %w", err)
	}
	return &License{ID: out.ID, Key: out.Key, URL: out.URL}, nil
}
