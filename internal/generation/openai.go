package generation

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kardai/apiserver/config"
	openai "github.com/sashabaranov/go-openai"
)

// transportSlack keeps the HTTP client timeout a backstop behind the
// per-call context deadline set by Client.
const transportSlack = 5 * time.Second

// Config is the provider configuration, built once at startup and passed in.
type Config struct {
	APIKey       string
	BaseURL      string
	TextModel    string
	ImageModel   string
	MaxTokens    int
	Temperature  float32
	ImageSize    string
	ImageQuality string
	CallTimeout  time.Duration
}

// ConfigFromApp maps application config onto provider config.
func ConfigFromApp(cfg config.OpenAIConfig) Config {
	return Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		TextModel:    cfg.TextModel,
		ImageModel:   cfg.ImageModel,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		ImageSize:    cfg.ImageSize,
		ImageQuality: cfg.ImageQuality,
		CallTimeout:  cfg.CallTimeout,
	}
}

// OpenAIProvider talks to the OpenAI chat completion and image APIs.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAIProvider builds a provider. An empty API key is accepted; calls
// then fail at the provider and are degraded by the Client.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.CallTimeout + transportSlack}

	if cfg.TextModel == "" {
		cfg.TextModel = openai.GPT4
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	if cfg.ImageQuality == "" {
		cfg.ImageQuality = openai.CreateImageQualityStandard
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (p *OpenAIProvider) CompleteText(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.TextModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyText
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.cfg.ImageModel,
		N:              1,
		Size:           p.cfg.ImageSize,
		Quality:        p.cfg.ImageQuality,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", ErrEmptyImage
	}
	return resp.Data[0].URL, nil
}
