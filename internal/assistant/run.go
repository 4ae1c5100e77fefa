package assistant

import "context"

type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusCancelled      RunStatus = "cancelled"
	StatusExpired        RunStatus = "expired"
)

// Pending reports whether the run is still being worked on by the provider.
func (s RunStatus) Pending() bool {
	return s == StatusQueued || s == StatusInProgress
}

// Terminal reports whether the run can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolOutput struct {
	CallID string
	Output string
}

type Run struct {
	ID            string
	ThreadID      string
	Status        RunStatus
	ToolCalls     []ToolCall
	FailureReason string
}

type Message struct {
	Role string
	Text string
}

// Provider is the hosted assistant runtime a chat thread lives in.
type Provider interface {
	CreateThread(ctx context.Context, firstMessage string) (string, error)
	CreateMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)
	ListRuns(ctx context.Context, threadID string) ([]Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns the thread's messages, latest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}
