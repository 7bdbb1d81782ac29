package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/satriahrh/backbone/config"
	"github.com/satriahrh/backbone/domain"
)

const maxErrorBody = 512

// AzureClient talks to an Azure OpenAI chat-completions deployment.
type AzureClient struct {
	cfg    config.Azure
	client *http.Client
}

func NewAzureClient(cfg config.Azure) *AzureClient {
	cfg.EndpointURL = strings.TrimRight(strings.TrimSpace(cfg.EndpointURL), "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = config.DefaultAPIVersion
	}
	return &AzureClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *chatMessage `json:"message"`
	} `json:"choices"`
}

// URL returns the chat-completions address of the configured deployment.
func (a *AzureClient) URL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.cfg.EndpointURL,
		url.PathEscape(a.cfg.DeploymentName),
		url.QueryEscape(a.cfg.APIVersion),
	)
}

// Complete implements domain.Completer.
func (a *AzureClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Turn, error) {
	body, err := json.Marshal(toChatRequest(req))
	if err != nil {
		return domain.Turn{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL(), bytes.NewReader(body))
	if err != nil {
		return domain.Turn{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return domain.Turn{}, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	return DecodeReply(data)
}

// toChatRequest strips every turn down to role and content.
func toChatRequest(req domain.CompletionRequest) chatRequest {
	messages := make([]chatMessage, len(req.Messages))
	for i, t := range req.Messages {
		messages[i] = chatMessage{Role: string(t.Role), Content: t.Content}
	}
	return chatRequest{Messages: messages, Temperature: req.Temperature}
}

// DecodeReply extracts choices[0].message from a chat-completions body.
// The reply role is taken as-is.
func DecodeReply(data []byte) (domain.Turn, error) {
	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.Turn{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	if len(resp.Choices) == 0 {
		return domain.Turn{}, &DecodeError{Reason: "missing choices"}
	}
	msg := resp.Choices[0].Message
	if msg == nil {
		return domain.Turn{}, &DecodeError{Reason: "missing message"}
	}
	return domain.NewTurn(domain.Role(msg.Role), msg.Content), nil
}
