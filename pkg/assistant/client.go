package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrEmptyReply is returned when the model answered without any text.
var ErrEmptyReply = errors.New("assistant returned no text")

// Config configures the text-generation client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retries int
}

// Prompt is one generation request. Facts is the only patient data the model ever sees.
type Prompt struct {
	Instruction string
	Facts       string
	Message     string
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls a generateContent style REST endpoint.
type Client struct {
	http   *resty.Client
	model  string
	logger *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetQueryParam("key", cfg.APIKey)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
	})

	return &Client{http: client, model: cfg.Model, logger: logger}
}

// Generate returns the model's text for prompt.
func (c *Client) Generate(ctx context.Context, prompt Prompt) (string, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: userText(prompt)}}}},
	}
	if prompt.Instruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: prompt.Instruction}}}
	}

	var result generateResponse
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("assistant request: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("assistant returned error", zap.Int("status_code", resp.StatusCode()), zap.String("message", failure.Error.Message))
		return "", fmt.Errorf("assistant error: %s (status %d)", failure.Error.Message, resp.StatusCode())
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		for _, p := range candidate.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func userText(p Prompt) string {
	if p.Facts == "" {
		return p.Message
	}
	return fmt.Sprintf("Lookup result (authoritative, do not add details):\n%s\n\nVisitor message:\n%s", p.Facts, p.Message)
}
