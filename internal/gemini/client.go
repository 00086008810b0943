package gemini

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

	"github.com/ideaspark/ideaspark/internal/config"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com"
	defaultRequestTimeout = 30 * time.Second
)

// ErrUpstream indicates the provider failed or returned an unexpected shape.
var ErrUpstream = errors.New("gemini: upstream error")

// ErrNotConfigured indicates no API key is set; no provider call is made.
var ErrNotConfigured = errors.New("gemini: api key not configured")

// Generator produces text for a prompt. Satisfied by Client and by test doubles.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client calls the Gemini generateContent REST API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client from provider configuration.
func NewClient(cfg config.GeminiConfig) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = config.DefaultGeminiModel
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

// generateResponse maps the fields needed from the provider response.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt to the provider and returns the raw text.
// A single failed call surfaces immediately; no retries are performed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || !c.Configured() {
		return "", ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, errMarshal := json.Marshal(generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
	})
	if errMarshal != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", errMarshal)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if errReq != nil {
		return "", fmt.Errorf("gemini: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrUpstream, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("gemini: close response body")
		}
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if errRead != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warnf("gemini: api returned status %d", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var decoded generateResponse
	if errUnmarshal := json.Unmarshal(body, &decoded); errUnmarshal != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, errUnmarshal)
	}
	if len(decoded.Candidates) == 0 ||
		len(decoded.Candidates[0].Content.Parts) == 0 ||
		decoded.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrUpstream)
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
