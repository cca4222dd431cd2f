// Package gemini implements the concierge chat and image edit collaborators over the Gemini REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/media"
	"github.com/muse-store/miniapp/internal/platform/config"
	"github.com/muse-store/miniapp/internal/platform/observability"
)

const (
	meterName        = "github.com/muse-store/miniapp/internal/platform/gemini"
	maxResponseBytes = 32 << 20
	defaultTimeout   = 60 * time.Second
)

const conciergeInstruction = "You are Muse, the concierge of a luxury leather goods boutique. Answer briefly and " +
	"elegantly. Help with product details, styling advice and questions about the brand."

var (
	// ErrNotConfigured signals a client built without an API key.
	ErrNotConfigured = errors.New("gemini: api key not configured")
	// ErrEmptyResponse signals a response without usable content.
	ErrEmptyResponse = errors.New("gemini: response contained no content")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: status %d", e.Status)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.Status, e.Message)
}

// Client calls generateContent for chat and image models.
type Client struct {
	endpoint   string
	apiKey     string
	chatModel  string
	imageModel string
	http       *http.Client
	failures   metric.Int64Counter
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithMeter overrides the meter used for failure counters.
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		if meter != nil {
			c.failures, _ = meter.Int64Counter("ai.requests.failed")
		}
	}
}

// NewClient builds a client from configuration.
func NewClient(cfg config.AIConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
		http:       &http.Client{Timeout: timeout},
	}
	c.failures, _ = otel.GetMeterProvider().Meter(meterName).Int64Counter("ai.requests.failed",
		metric.WithDescription("Failed calls to the generative AI collaborators"))
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.endpoint == "" || c.chatModel == "" || c.imageModel == "" {
		return nil, errors.New("gemini: endpoint and models are required")
	}
	return c, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content       `json:"systemInstruction,omitempty"`
	Contents          []content      `json:"contents"`
	GenerationConfig  map[string]any `json:"generationConfig,omitempty"`
}

// Send implements the concierge chat model. history is replayed before message.
func (c *Client) Send(ctx context.Context, history []domain.ChatMessage, message string) (reply string, err error) {
	ctx, finish := observability.StartSpan(ctx, "gemini.chat",
		attribute.String("gemini.model", c.chatModel),
		attribute.Int("gemini.history", len(history)))
	defer func() { finish(err) }()

	contents := make([]content, 0, len(history)+1)
	for _, msg := range history {
		role := "user"
		if msg.Role == domain.ChatRoleModel {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: msg.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: message}}})

	body, err := c.generate(ctx, c.chatModel, generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: conciergeInstruction}}},
		Contents:          contents,
	})
	if err != nil {
		return "", err
	}

	var texts []string
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		if text := p.Get("text"); text.Exists() {
			texts = append(texts, text.String())
		}
		return true
	})
	reply = strings.TrimSpace(strings.Join(texts, ""))
	if reply == "" {
		return "", c.fail(ctx, "chat", ErrEmptyResponse)
	}
	return reply, nil
}

// Edit implements the image editor: it sends the source image with the prompt and returns the
// first image part of the response as a data URI.
func (c *Client) Edit(ctx context.Context, imageDataURI, prompt string) (result string, err error) {
	ctx, finish := observability.StartSpan(ctx, "gemini.edit_image", attribute.String("gemini.model", c.imageModel))
	defer func() { finish(err) }()

	mimeType, payload, err := media.DecodeDataURI(imageDataURI)
	if err != nil {
		return "", err
	}
	body, err := c.generate(ctx, c.imageModel, generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(payload)}},
				{Text: prompt},
			},
		}},
		GenerationConfig: map[string]any{"responseModalities": []string{"TEXT", "IMAGE"}},
	})
	if err != nil {
		return "", err
	}

	var refusal string
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		data := p.Get("inlineData")
		if !data.Exists() {
			data = p.Get("inline_data")
		}
		if data.Exists() && data.Get("data").String() != "" {
			mime := data.Get("mimeType").String()
			if mime == "" {
				mime = data.Get("mime_type").String()
			}
			if mime == "" {
				mime = "image/png"
			}
			result = "data:" + mime + ";base64," + data.Get("data").String()
			return false
		}
		if text := p.Get("text").String(); text != "" && refusal == "" {
			refusal = strings.TrimSpace(text)
		}
		return true
	})
	if result == "" {
		if refusal != "" {
			return "", c.fail(ctx, "edit_image", fmt.Errorf("%w: %s", ErrEmptyResponse, refusal))
		}
		return "", c.fail(ctx, "edit_image", ErrEmptyResponse)
	}
	return result, nil
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest) ([]byte, error) {
	op := "generate"
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.fail(ctx, op, fmt.Errorf("gemini: request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(ctx, op, fmt.Errorf("gemini: read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(ctx, op, &APIError{Status: resp.StatusCode, Message: gjson.GetBytes(body, "error.message").String()})
	}
	if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
		return nil, c.fail(ctx, op, fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, reason))
	}
	return body, nil
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	if c.failures != nil {
		c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	return err
}
