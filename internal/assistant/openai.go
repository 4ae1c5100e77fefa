package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	listRunsLimit     = 10
	listMessagesLimit = 20
)

// OpenAIProvider runs threads on the OpenAI Assistants API.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) CreateThread(ctx context.Context, firstMessage string) (string, error) {
	req := openai.ThreadRequest{}
	if firstMessage != "" {
		req.Messages = []openai.ThreadMessage{{Role: openai.ThreadMessageRoleUser, Content: firstMessage}}
	}
	thread, err := p.client.CreateThread(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (p *OpenAIProvider) CreateMessage(ctx context.Context, threadID, role, content string) error {
	_, err := p.client.CreateMessage(ctx, threadID, openai.MessageRequest{Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	run, err := p.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  assistantID,
		Instructions: instructions,
	})
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIProvider) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := p.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIProvider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{ToolCallID: o.CallID, Output: o.Output})
	}
	run, err := p.client.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return Run{}, fmt.Errorf("submit tool outputs: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIProvider) ListRuns(ctx context.Context, threadID string) ([]Run, error) {
	limit := listRunsLimit
	list, err := p.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(list.Runs))
	for _, r := range list.Runs {
		runs = append(runs, convertRun(r))
	}
	return runs, nil
}

func (p *OpenAIProvider) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := p.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	limit := listMessagesLimit
	order := "desc"
	list, err := p.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		var sb strings.Builder
		for _, c := range m.Content {
			if c.Text != nil {
				sb.WriteString(c.Text.Value)
			}
		}
		msgs = append(msgs, Message{Role: m.Role, Text: sb.String()})
	}
	return msgs, nil
}

func convertRun(r openai.Run) Run {
	run := Run{ID: r.ID, ThreadID: r.ThreadID, Status: convertStatus(r.Status)}
	if r.Status == openai.RunStatusIncomplete {
		run.FailureReason = "incomplete"
	}
	if r.LastError != nil {
		run.FailureReason = r.LastError.Message
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return run
}

func convertStatus(s openai.RunStatus) RunStatus {
	switch s {
	case openai.RunStatusQueued:
		return StatusQueued
	case openai.RunStatusInProgress, openai.RunStatusCancelling:
		return StatusInProgress
	case openai.RunStatusRequiresAction:
		return StatusRequiresAction
	case openai.RunStatusCompleted:
		return StatusCompleted
	case openai.RunStatusCancelled:
		return StatusCancelled
	case openai.RunStatusExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}
