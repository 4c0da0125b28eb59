// Package gemini wraps the Gemini generateContent API for transcription and summaries.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultModel      = "gemini-2.5-flash"
	DefaultTimeout    = 120 * time.Second
	defaultAPIVersion = "v1beta"
)

// ErrMissingAPIKey is returned when the client is built without credentials.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// ErrEmptyResponse is returned when a response carries no text parts.
var ErrEmptyResponse = errors.New("gemini: response contained no text")

// APIError reports a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini error (status %d): %s", e.StatusCode, e.Message)
}

// ClientConfig describes how to reach the API. Empty fields fall back to the defaults.
type ClientConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues generateContent calls for a single model.
type Client struct {
	models  *genai.Models
	model   string
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a Gemini API backed client. No request is made until GenerateText.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL + "/",
			APIVersion: defaultAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{
		models:  sdkClient.Models,
		model:   model,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// GenerateText sends parts as a single user turn and returns the text of the first candidate.
func (c *Client) GenerateText(ctx context.Context, parts ...*genai.Part) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("gemini: at least one part is required")
	}

	started := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	c.logger.Debug("gemini request completed",
		zap.String("model", c.model),
		zap.String("base_url", c.baseURL),
		zap.Int("parts", len(parts)),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err))
	if err != nil {
		return "", translateError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrRef *genai.APIError
	if errors.As(err, &apiErrRef) && apiErrRef != nil {
		return &APIError{StatusCode: apiErrRef.Code, Status: apiErrRef.Status, Message: apiErrRef.Message}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
