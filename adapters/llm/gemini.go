package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/satriahrh/backbone/config"
	"github.com/satriahrh/backbone/domain"
)

type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.Gemini) (*GeminiClient, error) {
	client, err := genai.NewClient(
		ctx,
		&genai.ClientConfig{
			APIKey:      cfg.APIKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}
	return &GeminiClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

// Complete implements domain.Completer.
func (g *GeminiClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Turn, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	system, contents := toGeminiContents(req.Messages)

	temperature := float32(req.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: system,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("generate content: %w", err)
	}
	return decodeGeminiResponse(resp)
}

// decodeGeminiResponse turns the first candidate's text into an assistant
// turn. A response without text is a decode failure.
func decodeGeminiResponse(resp *genai.GenerateContentResponse) (domain.Turn, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.Turn{}, &DecodeError{Reason: "missing candidates"}
	}
	if c := resp.Candidates[0]; c == nil || c.Content == nil {
		return domain.Turn{}, &DecodeError{Reason: "missing content"}
	}
	text := resp.Text()
	if text == "" {
		return domain.Turn{}, &DecodeError{Reason: "missing text"}
	}
	return domain.NewTurn(domain.AssistantRole, text), nil
}

// toGeminiContents folds system turns into a single system instruction and
// maps assistant turns onto the model role.
func toGeminiContents(turns []domain.Turn) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		part := &genai.Part{Text: t.Content}
		switch t.Role {
		case domain.SystemRole:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, part)
		case domain.UserRole:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{part}})
		}
	}
	return system, contents
}
