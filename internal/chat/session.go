package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
	"github.com/strawberry/sitebuilder-go/internal/billing"
	"github.com/strawberry/sitebuilder-go/internal/tools"
)

// Fixed texts the user sees when an exchange cannot produce an assistant reply.
const (
	BusyText         = "Another request is already being processed. Please wait."
	NoResponseText   = "No response from the assistant."
	SubmitFailedText = "An error occurred while processing the request."
)

const recallPrefix = "It is very important that you follow these instructions. " +
	"This is the code you need to modify. Modify only what the user requests and leave everything else as is: "

// Ledger is the part of billing.Ledger a session charges through.
type Ledger interface {
	Charge(ctx context.Context, userID string, cost decimal.Decimal, reason string) (decimal.Decimal, error)
	ChargeTokens(ctx context.Context, userID string, tokens int, rate decimal.Decimal, reason string) (decimal.Decimal, error)
}

// ToolRunner executes tool calls; *tools.Toolbox implements it.
type ToolRunner interface {
	Run(ctx context.Context, call tools.Call) (tools.Rendered, error)
	Music(ctx context.Context, call tools.GenerateMusic) (tools.Rendered, error)
}

type Rates struct {
	Standard   decimal.Decimal
	Generation decimal.Decimal
	MusicFee   decimal.Decimal
}

type SessionOptions struct {
	Hash         string
	UserID       string
	ThreadID     string
	AssistantID  string
	Instructions string
	Language     string
	Balance      decimal.Decimal
	Rates        Rates
	PollInterval time.Duration

	Provider assistant.Provider
	Tools    ToolRunner
	Ledger   Ledger
	Counter  billing.TokenCounter
}

// Reply is the outcome of one exchange.
type Reply struct {
	Text string
	// HTML is the last rendered tool output of the exchange, empty when no tool rendered anything.
	HTML    string
	Busy    bool
	Balance decimal.Decimal
}

// Session drives one chat thread. At most one exchange runs at a time; the
// guard protects run, pending and balance. document has its own lock because
// publishing updates it from outside an exchange.
type Session struct {
	opts SessionOptions

	guard      sync.Mutex
	run        assistant.Run
	pending    string
	hasPending bool
	balance    decimal.Decimal

	docMu    sync.RWMutex
	document string
}

func NewSession(opts SessionOptions) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Language == "" {
		opts.Language = "English"
	}
	return &Session{opts: opts, balance: opts.Balance}
}

func (s *Session) Hash() string     { return s.opts.Hash }
func (s *Session) UserID() string   { return s.opts.UserID }
func (s *Session) ThreadID() string { return s.opts.ThreadID }

func (s *Session) Document() string {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return s.document
}

func (s *Session) SetDocument(html string) {
	s.docMu.Lock()
	s.document = html
	s.docMu.Unlock()
}

// PushUserMessage runs one exchange. A concurrent call on the same session
// returns a Busy reply immediately without charging.
func (s *Session) PushUserMessage(ctx context.Context, text string, media []string) (Reply, error) {
	if !s.guard.TryLock() {
		return Reply{Text: BusyText, Busy: true}, nil
	}
	defer s.guard.Unlock()

	s.cancelStaleRuns(ctx)
	s.pending, s.hasPending = "", false

	content := composeMessage(text, media)
	if err := s.opts.Provider.CreateMessage(ctx, s.opts.ThreadID, "user", s.directive()+"\n\n"+content); err != nil {
		return Reply{}, err
	}
	run, err := s.opts.Provider.CreateRun(ctx, s.opts.ThreadID, s.opts.AssistantID, s.opts.Instructions)
	if err != nil {
		return Reply{}, err
	}
	s.run = run

	answer, ok, err := s.awaitReply(ctx)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Text: NoResponseText, Balance: s.balance}, nil
	}

	if err := s.chargeTokens(ctx, s.opts.Rates.Standard, s.opts.Counter.Count(content), "message input"); err != nil {
		log.Error().Err(err).Str("chatHash", s.opts.Hash).Msg("Failed to charge input tokens")
	}
	if err := s.chargeTokens(ctx, s.opts.Rates.Standard, s.opts.Counter.Count(answer), "message output"); err != nil {
		log.Error().Err(err).Str("chatHash", s.opts.Hash).Msg("Failed to charge output tokens")
	}

	reply := Reply{Text: answer, Balance: s.balance}
	if s.hasPending {
		reply.HTML = s.pending
	}
	return reply, nil
}

func (s *Session) directive() string {
	return fmt.Sprintf("You must respond and generate all content in %s. "+
		"Always consult your retrieval knowledge and follow the instructions in the uploaded files.", s.opts.Language)
}

func composeMessage(text string, media []string) string {
	var urls []string
	for _, m := range media {
		if m = strings.TrimSpace(m); m != "" {
			urls = append(urls, m)
		}
	}
	if len(urls) == 0 {
		return text
	}
	return text + "\n\nYou must also include these images:\n" + strings.Join(urls, "\n")
}

// cancelStaleRuns cancels runs a previous, possibly crashed, exchange left
// open; the provider refuses new runs while one is active on the thread.
func (s *Session) cancelStaleRuns(ctx context.Context) {
	runs, err := s.opts.Provider.ListRuns(ctx, s.opts.ThreadID)
	if err != nil {
		log.Warn().Err(err).Str("chatHash", s.opts.Hash).Msg("Failed to list runs")
		return
	}
	for _, r := range runs {
		if r.Status.Terminal() {
			continue
		}
		if err := s.opts.Provider.CancelRun(ctx, s.opts.ThreadID, r.ID); err != nil {
			log.Warn().Err(err).Str("chatHash", s.opts.Hash).Str("runId", r.ID).Msg("Failed to cancel stale run")
		}
	}
}

// awaitReply polls the current run until it completes, fails, or stops
// producing tool work. ok is false when the run ended without a reply.
func (s *Session) awaitReply(ctx context.Context) (string, bool, error) {
	for {
		for s.run.Status.Pending() {
			run, err := s.opts.Provider.GetRun(ctx, s.opts.ThreadID, s.run.ID)
			if err != nil {
				return "", false, err
			}
			s.run = run
			if run.Status.Pending() {
				if err := sleep(ctx, s.opts.PollInterval); err != nil {
					return "", false, err
				}
			}
		}

		switch s.run.Status {
		case assistant.StatusCompleted:
			return s.latestAnswer(ctx)

		case assistant.StatusRequiresAction:
			outputs := make([]assistant.ToolOutput, 0, len(s.run.ToolCalls))
			for _, tc := range s.run.ToolCalls {
				outputs = append(outputs, assistant.ToolOutput{CallID: tc.ID, Output: s.dispatch(ctx, tc)})
			}
			if len(outputs) == 0 {
				return "", false, nil
			}
			run, err := s.opts.Provider.SubmitToolOutputs(ctx, s.opts.ThreadID, s.run.ID, outputs)
			if err != nil {
				log.Error().Err(err).Str("chatHash", s.opts.Hash).Msg("Failed to submit tool outputs")
				return SubmitFailedText, true, nil
			}
			s.run = run

		case assistant.StatusFailed, assistant.StatusCancelled, assistant.StatusExpired:
			text := fmt.Sprintf("The run ended with status: %s.", s.run.Status)
			if s.run.FailureReason != "" {
				text += " Reason: " + s.run.FailureReason
			}
			return text, true, nil

		default:
			return "", false, nil
		}
	}
}

func (s *Session) latestAnswer(ctx context.Context) (string, bool, error) {
	msgs, err := s.opts.Provider.ListMessages(ctx, s.opts.ThreadID)
	if err != nil {
		return "", false, err
	}
	for _, m := range msgs {
		if m.Role == "assistant" {
			return m.Text, true, nil
		}
	}
	return "", false, nil
}

// dispatch always yields an output string; failures become a description.
func (s *Session) dispatch(ctx context.Context, tc assistant.ToolCall) string {
	call, err := tools.Decode(tc)
	if err == nil {
		var out string
		if out, err = s.handle(ctx, call); err == nil {
			return out
		}
	}
	log.Warn().Err(err).Str("chatHash", s.opts.Hash).Str("tool", tc.Name).Msg("Tool call failed")
	return "A problem occurred: " + err.Error()
}

func (s *Session) handle(ctx context.Context, call tools.Call) (string, error) {
	switch c := call.(type) {
	case tools.GenerateMusic:
		if err := s.charge(ctx, s.opts.Rates.MusicFee, tools.NameGenerateMusic); err != nil {
			return "", err
		}
		r, err := s.opts.Tools.Music(ctx, c)
		if err != nil {
			return "", err
		}
		s.setPending(r.HTML)
		return r.HTML, nil

	case tools.RecallHTML:
		out := recallPrefix + s.Document()
		if err := s.chargeTokens(ctx, s.opts.Rates.Standard, s.opts.Counter.Count(out), tools.NameRecallHTML); err != nil {
			return "", err
		}
		return out, nil

	case tools.EditCurrentDocument:
		s.SetDocument(c.HTML)
		s.setPending(c.HTML)
		if err := s.chargeTokens(ctx, s.opts.Rates.Standard, s.opts.Counter.Count(c.HTML), tools.NameEditCurrentDocument); err != nil {
			return "", err
		}
		return c.HTML, nil

	case tools.CreateNewDocument:
		r, err := s.opts.Tools.Run(ctx, c)
		if err != nil {
			return "", err
		}
		html := s.adopt(r)
		if err := s.chargeTokens(ctx, s.opts.Rates.Generation, r.GenerationTokens, tools.NameCreateNewDocument); err != nil {
			return "", err
		}
		return html, nil

	case tools.SearchImages:
		r, err := s.opts.Tools.Run(ctx, c)
		if err != nil {
			return "", err
		}
		html := s.adopt(r)
		if err := s.chargeTokens(ctx, s.opts.Rates.Standard, s.opts.Counter.Count(html), tools.NameSearchImages); err != nil {
			return "", err
		}
		return html, nil

	default:
		return "", fmt.Errorf("unhandled tool call %T", call)
	}
}

// adopt makes a tool rendering the pending output, and the current document
// when the tool produced a full page.
func (s *Session) adopt(r tools.Rendered) string {
	html := tools.StripFences(r.HTML)
	s.setPending(html)
	if r.Document {
		s.SetDocument(html)
	}
	return html
}

func (s *Session) setPending(html string) {
	s.pending, s.hasPending = html, true
}

func (s *Session) charge(ctx context.Context, cost decimal.Decimal, reason string) error {
	balance, err := s.opts.Ledger.Charge(ctx, s.opts.UserID, cost, reason)
	if err != nil {
		return err
	}
	s.balance = balance
	return nil
}

func (s *Session) chargeTokens(ctx context.Context, rate decimal.Decimal, tokens int, reason string) error {
	balance, err := s.opts.Ledger.ChargeTokens(ctx, s.opts.UserID, tokens, rate, reason)
	if err != nil {
		return err
	}
	s.balance = balance
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
