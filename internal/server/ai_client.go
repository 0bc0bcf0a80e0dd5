package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"supportchat/backend/internal/config"
)

// AIClient is the completion-service boundary: one blocking call taking a
// composed prompt and returning completion text or an error.
type AIClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type CompletionOutcome string

const (
	CompletionOK            CompletionOutcome = "ok"
	CompletionFallbackShort CompletionOutcome = "fallback_short"
	CompletionFallbackError CompletionOutcome = "fallback_error"
)

// CompletionResult lets callers tell "model returned too little" apart from
// "transport failed" while keeping the same user-visible fallback text in
// both cases. Text is always usable as the reply.
type CompletionResult struct {
	Text    string
	Outcome CompletionOutcome
	Err     error
}

const (
	shortReplyMinChars = 10

	shortReplyFallback = "I understand what you're saying. Could you tell me more about how you're feeling?"

	transportFallback = "I'm here to listen and support you. I'm experiencing some technical difficulties right now, " +
		"but I want you to know that your feelings are valid and important. " +
		"Would you like to try sharing again?"
)

// completeWithFallback never returns an error to its caller; any failure of
// the underlying call is absorbed into a fixed supportive fallback and
// surfaced only through the result's Outcome and Err fields.
func completeWithFallback(ctx context.Context, client AIClient, prompt string) CompletionResult {
	text, err := client.Generate(ctx, prompt)
	if err != nil {
		return CompletionResult{
			Text:    transportFallback,
			Outcome: CompletionFallbackError,
			Err:     err,
		}
	}
	text = strings.TrimSpace(text)
	if len(text) < shortReplyMinChars {
		return CompletionResult{
			Text:    shortReplyFallback,
			Outcome: CompletionFallbackShort,
		}
	}
	return CompletionResult{Text: text, Outcome: CompletionOK}
}

type GeminiClient struct {
	client  *genai.Client
	model   string
	genCfg  *genai.GenerateContentConfig
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.Config) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		return nil, errors.New("GEMINI_MODEL is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client: client,
		model:  model,
		genCfg: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.AITemperature),
			TopP:            genai.Ptr(cfg.AITopP),
			TopK:            genai.Ptr(cfg.AITopK),
			MaxOutputTokens: cfg.AIMaxOutputTokens,
		},
		timeout: time.Duration(cfg.AITimeoutSeconds) * time.Second,
	}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.genCfg)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Text()), nil
}

// MockAIClient stands in for the completion service in tests and local
// development without an API key.
type MockAIClient struct {
	Reply string
	Err   error
}

func (m MockAIClient) Generate(_ context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	if strings.Contains(strings.ToLower(prompt), "grateful") {
		return "That's wonderful to hear. It sounds like you're noticing real progress.", nil
	}
	return "Thank you for sharing that with me. I'm here with you; tell me more about how today has been.", nil
}
