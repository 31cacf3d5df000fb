// Package openai provides a vision provider backed by the OpenAI chat
// completions API, passing page images as data-URL image parts.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/panelvox/panelvox/pkg/provider/vision"
	"github.com/panelvox/panelvox/pkg/types"
)

// Compile-time interface check.
var _ vision.Provider = (*Provider)(nil)

const defaultMaxTokens = 4096

// Provider implements vision.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI vision Provider. The model must support image
// inputs (e.g. "gpt-4o").
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Analyze implements vision.Provider.
func (p *Provider) Analyze(ctx context.Context, req vision.Request) (string, error) {
	if req.Instruction == "" {
		return "", fmt.Errorf("openai: instruction must not be empty")
	}
	if len(req.Images) == 0 {
		return "", fmt.Errorf("openai: at least one image is required")
	}

	parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(req.Images)+1)
	parts = append(parts, oai.TextContentPart(req.Instruction))
	for _, img := range req.Images {
		if len(img.Data) == 0 {
			return "", fmt.Errorf("openai: page %d has no image data", img.Number)
		}
		parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(img),
		}))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(parts),
		},
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// dataURL encodes a page image as a base64 data URL.
func dataURL(img types.PageImage) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
