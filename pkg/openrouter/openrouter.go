package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	headerReferer = "HTTP-Referer"
	headerTitle   = "X-Title"
)

// ChatModelFactory builds the eino chat model that writes plans.
type ChatModelFactory interface {
	ChatModel(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ ChatModelFactory = Config{}

// reasoningExcluded lists models that reason by default; their reasoning is
// switched off because plans are read as plain text.
var reasoningExcluded = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

// Config is one model endpoint on OpenRouter (or any OpenAI compatible API).
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	MaxCompletionToken *int
	Temperature        float32
	Timeout            time.Duration
	SiteURL            string
	SiteName           string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("openrouter: api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("openrouter: model is required")
	}
	return nil
}

// ChatModel builds an eino OpenAI chat model for c. Attribution headers are
// added by the HTTP transport since the eino config has no header option.
func (c Config) ChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	modelName := strings.TrimSpace(c.Model)
	temperature := c.Temperature

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &temperature,
		Timeout:     c.Timeout,
		HTTPClient: &http.Client{
			Timeout:   c.Timeout,
			Transport: attributionTransport{base: http.DefaultTransport, headers: c.attribution()},
		},
	}
	if reasoningExcluded[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{"exclude": true, "effort": "none"},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model %s: %w", modelName, err)
	}
	return m, nil
}

func (c Config) attribution() map[string]string {
	headers := map[string]string{}
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		headers[headerReferer] = v
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		headers[headerTitle] = v
	}
	return headers
}

type attributionTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// newSDKClient configures the OpenAI SDK for c.
func newSDKClient(c Config) (*openaisdk.Client, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(c.APIKey))}
	if base := strings.TrimRight(c.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	for k, v := range c.attribution() {
		opts = append(opts, option.WithHeader(k, v))
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &client, nil
}
