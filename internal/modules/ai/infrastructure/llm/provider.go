package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"SecAssist/internal/config"

	arkModel "github.com/cloudwego/eino-ext/components/model/ark"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

const (
	defaultChatTimeout = 2 * time.Minute
	defaultArkRetries  = 2
)

// ChatModelMeta identifies the backing model in logs
type ChatModelMeta struct {
	Provider string
	Model    string
}

type chatModelBuilder func(ctx context.Context, c config.AIChatModelConfig) (model.BaseChatModel, string, error)

// chatModelBuilders keyed by aiConfig.chatModel.provider; each returns the resolved model name
var chatModelBuilders = map[string]chatModelBuilder{
	"openai": buildOpenAIChatModel,
	"ark":    buildArkChatModel,
	"mock":   buildMockChatModel,
}

// NewChatModelFromConfig one instance serves classification, handlers,
// synthesis and summaries.
func NewChatModelFromConfig(ctx context.Context, conf *config.Config) (model.BaseChatModel, ChatModelMeta, error) {
	if conf == nil {
		return nil, ChatModelMeta{}, fmt.Errorf("nil config")
	}
	c := conf.AIConfig.ChatModel
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider == "" || provider == "disabled" || provider == "none" {
		return nil, ChatModelMeta{}, fmt.Errorf("chat model provider not configured")
	}

	build, ok := chatModelBuilders[provider]
	if !ok {
		return nil, ChatModelMeta{}, fmt.Errorf("unknown chat model provider: %s", provider)
	}
	cm, name, err := build(ctx, c)
	if err != nil {
		return nil, ChatModelMeta{}, fmt.Errorf("%s chat model: %w", provider, err)
	}
	return cm, ChatModelMeta{Provider: provider, Model: name}, nil
}

func buildOpenAIChatModel(ctx context.Context, c config.AIChatModelConfig) (model.BaseChatModel, string, error) {
	apiKey := orEnv(c.APIKey, "OPENAI_API_KEY")
	name := orEnv(c.Model, "OPENAI_MODEL")
	if apiKey == "" || name == "" {
		return nil, "", fmt.Errorf("missing apiKey/model")
	}

	cm, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:     apiKey,
		Model:      name,
		BaseURL:    orEnv(c.BaseURL, "OPENAI_BASE_URL"),
		ByAzure:    c.ByAzure,
		APIVersion: strings.TrimSpace(c.AzureAPIVersion),
		Timeout:    chatTimeout(c),
	})
	return cm, name, err
}

func buildArkChatModel(ctx context.Context, c config.AIChatModelConfig) (model.BaseChatModel, string, error) {
	apiKey := orEnv(c.APIKey, "ARK_API_KEY")
	accessKey := orEnv(c.AccessKey, "ARK_ACCESS_KEY")
	secretKey := orEnv(c.SecretKey, "ARK_SECRET_KEY")
	name := orEnv(c.Model, "ARK_MODEL_ID")
	if apiKey == "" && (accessKey == "" || secretKey == "") {
		return nil, "", fmt.Errorf("missing apiKey or accessKey/secretKey")
	}
	if name == "" {
		return nil, "", fmt.Errorf("missing model")
	}

	timeout := chatTimeout(c)
	retries := defaultArkRetries
	if c.RetryTimes > 0 {
		retries = c.RetryTimes
	}
	cm, err := arkModel.NewChatModel(ctx, &arkModel.ChatModelConfig{
		APIKey:     apiKey,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		Model:      name,
		BaseURL:    orEnv(c.BaseURL, "ARK_BASE_URL"),
		Region:     orEnv(c.Region, "ARK_REGION"),
		Timeout:    &timeout,
		RetryTimes: &retries,
	})
	return cm, name, err
}

func chatTimeout(c config.AIChatModelConfig) time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultChatTimeout
}

// orEnv configured value, else the environment variable
func orEnv(v, env string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(env))
}
