package server

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"mindwell/backend/internal/config"
)

const companionSystemPrompt = "You are a warm, supportive mental-wellness companion. " +
	"Listen first, reflect the user's feelings back in plain language, and offer one small, " +
	"concrete next step at most. Never diagnose, never prescribe, and encourage professional " +
	"help when the user describes crisis or self-harm."

type CompanionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompanionRequest struct {
	Conversation []CompanionTurn
	UserMessage  string
}

type CompanionClient interface {
	Reply(ctx context.Context, req CompanionRequest) (string, error)
}

// NewCompanionClient returns the OpenAI-backed companion when an API key is
// configured, otherwise the deterministic mock.
func NewCompanionClient(cfg config.Config) CompanionClient {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return MockCompanion{}
	}
	return NewOpenAICompanion(cfg)
}

type OpenAICompanion struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func NewOpenAICompanion(cfg config.Config) *OpenAICompanion {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	return &OpenAICompanion{
		client:    openai.NewClient(strings.TrimSpace(cfg.OpenAIAPIKey)),
		model:     strings.TrimSpace(cfg.OpenAIModel),
		maxTokens: cfg.AIMaxOutputTokens,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
}

func (c *OpenAICompanion) Reply(ctx context.Context, req CompanionRequest) (string, error) {
	model := c.model
	if model == "" {
		return "", errors.New("OPENAI_MODEL is not configured")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Conversation)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: companionSystemPrompt,
	})
	for _, turn := range req.Conversation {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	userMessage := strings.TrimSpace(req.UserMessage)
	if userMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("companion model returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

type MockCompanion struct{}

func (MockCompanion) Reply(_ context.Context, req CompanionRequest) (string, error) {
	message := strings.ToLower(strings.TrimSpace(req.UserMessage))
	if message == "" {
		return "I'm here with you. What's on your mind?", nil
	}
	switch {
	case strings.Contains(message, "anxious") || strings.Contains(message, "anxiety") || strings.Contains(message, "panic"):
		return "That sounds really uncomfortable. Try one slow breath in for four counts and out for six; would you like to tell me what set it off?", nil
	case strings.Contains(message, "sleep") || strings.Contains(message, "tired") || strings.Contains(message, "insomnia"):
		return "Rough nights wear everything down. A consistent wind-down time tonight might help; what usually keeps you up?", nil
	case strings.Contains(message, "sad") || strings.Contains(message, "down") || strings.Contains(message, "lonely"):
		return "Thank you for telling me. Feeling low is heavy to carry; is there one small thing that felt okay today?", nil
	default:
		return "I hear you. Tell me a little more about how that felt.", nil
	}
}
