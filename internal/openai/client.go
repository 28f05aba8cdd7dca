// Package openai is a minimal client for the image generation and chat
// completion endpoints. The credential is supplied per call and is never
// stored on the client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultN       = 1
	DefaultSize    = "1024x1024"

	maxImageBytes = 64 << 20
	maxBodyBytes  = 8 << 20
)

type Client struct {
	baseURL       string
	imageModel    string
	httpClient    *http.Client
	maxImageBytes int64
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithImageModel sets the "model" field of image requests. Empty leaves the
// service default.
func WithImageModel(model string) Option {
	return func(c *Client) { c.imageModel = model }
}

// WithMaxImageBytes caps the size of a downloaded image.
func WithMaxImageBytes(n int64) Option {
	return func(c *Client) { c.maxImageBytes = n }
}

// NewClient creates a client. A zero timeout disables the client deadline.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		maxImageBytes: maxImageBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateImage posts prompt to the image endpoint and returns the status code
// and the first image URL. n <= 0 and an empty size fall back to the defaults.
func (c *Client) GenerateImage(ctx context.Context, credential, prompt string, n int, size string) (*GenerationResult, error) {
	const op = "generate image"

	if n <= 0 {
		n = DefaultN
	}
	if size == "" {
		size = DefaultSize
	}

	status, body, err := c.postJSON(ctx, op, "/images/generations", credential, ImageRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      n,
		Size:   size,
	})
	if err != nil {
		return nil, err
	}

	var resp ImageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(op, status, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, malformed(op, status, errors.New("no images returned"))
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if resp.Data[0].URL == "" {
		return nil, malformed(op, status, errors.New("first image has no url"))
	}

	return &GenerationResult{
		StatusCode: status,
		URL:        resp.Data[0].URL,
		URLs:       urls,
	}, nil
}

// Complete sends a system instruction and one user message and returns
// choices[0].message.content.
func (c *Client) Complete(ctx context.Context, credential, model, system, user string) (string, error) {
	const op = "chat completion"

	status, body, err := c.postJSON(ctx, op, "/chat/completions", credential, ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", malformed(op, status, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", malformed(op, status, errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Download fetches the bytes behind an image URL returned by GenerateImage.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	const op = "download image"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &GenerationError{Kind: KindMalformedResponse, Op: op, Err: fmt.Errorf("bad image url: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, statusError(op, resp.StatusCode, "")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, networkError(op, err)
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, &GenerationError{
			Kind:       KindUpstream,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "image too large",
		}
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, op, path, credential string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, networkError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, networkError(op, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, statusError(op, resp.StatusCode, errorMessage(respBody))
	}
	return resp.StatusCode, respBody, nil
}

// errorMessage extracts error.message from an API error body.
func errorMessage(body []byte) string {
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error != nil {
		return truncate(ae.Error.Message, 300)
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
