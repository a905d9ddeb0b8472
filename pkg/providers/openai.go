package providers

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider is the official-SDK variant for the OpenAI API proper.
type OpenAIProvider struct {
	client openaisdk.Client
}

func NewOpenAI(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openaisdk.NewClient(opts...)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:            openaisdk.ChatModel(req.Model),
		Messages:         toSDKMessages(req.Messages),
		Temperature:      openaisdk.Float(req.Temperature),
		MaxTokens:        openaisdk.Int(int64(req.MaxTokens)),
		FrequencyPenalty: openaisdk.Float(req.FrequencyPenalty),
		PresencePenalty:  openaisdk.Float(req.PresencePenalty),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.StatusCode, apiErr.Message)
		}
		return "", classifyTransport(err)
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindMalformed, Detail: "response carried no choices"}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &Error{Kind: KindPolicyRejected, Detail: "upstream content filter triggered"}
	}
	return choice.Message.Content, nil
}

func toSDKMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.ImageURL != "":
			var parts []openaisdk.ChatCompletionContentPartUnionParam
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, openaisdk.TextContentPart(m.Content))
			}
			parts = append(parts, openaisdk.ImageContentPart(
				openaisdk.ChatCompletionContentPartImageImageURLParam{URL: m.ImageURL},
			))
			out = append(out, openaisdk.UserMessage(parts))
		case m.Role == "system":
			out = append(out, openaisdk.SystemMessage(m.Content))
		case m.Role == "assistant":
			out = append(out, openaisdk.AssistantMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}
