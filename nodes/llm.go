package nodes

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// defaultLLMModel is used when the node config does not name a model.
const defaultLLMModel = openai.ChatModelGPT4oMini

// runLLM runs one chat completion. Config fields: prompt (required), model
// (optional), credentials (sealed blob whose api_key field authenticates
// the request). The result carries the completion text.
func (b *builtins) runLLM(ctx context.Context, config map[string]any, _ map[string]any) (any, error) {
	prompt, ok := config["prompt"].(string)
	if !ok || prompt == "" {
		return nil, fmt.Errorf("llm node requires a prompt")
	}
	sealed, ok := config["credentials"].(string)
	if !ok || sealed == "" {
		return nil, fmt.Errorf("llm node requires sealed credentials")
	}
	if b.vault == nil {
		return nil, fmt.Errorf("llm node has sealed credentials but no vault is configured")
	}
	apiKey, err := b.vault.OpenField(sealed, "api_key")
	if err != nil {
		return nil, fmt.Errorf("open llm credentials: %w", err)
	}

	model := defaultLLMModel
	if m, ok := config["model"].(string); ok && m != "" {
		model = openai.ChatModel(m)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return map[string]any{
		"content": completion.Choices[0].Message.Content,
		"model":   completion.Model,
	}, nil
}
