package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
	"github.com/strawberry/sitebuilder-go/internal/billing"
	"github.com/strawberry/sitebuilder-go/internal/chat"
	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/publish"
	"github.com/strawberry/sitebuilder-go/internal/sse"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const (
	chatHashLength = 18
	chatHashChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type ChatStore interface {
	FindByHash(ctx context.Context, userID, hash string) (*model.ChatHistory, error)
	FindLatest(ctx context.Context, userID string) (*model.ChatHistory, error)
	ListByUser(ctx context.Context, userID string) ([]model.ChatSummary, error)
	Create(ctx context.Context, userID, hash, title string) (*model.ChatHistory, error)
	Append(ctx context.Context, userID, hash string, entries model.ChatEntries, titleRunes int) (bool, error)
	Delete(ctx context.Context, userID, hash string) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type WebsiteLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.Website, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// EventPublisher delivers events to a user's open streams.
type EventPublisher interface {
	Publish(ctx context.Context, userID string, event sse.Event) error
}

type ChatServiceOptions struct {
	Profile      config.AssistantProfile
	Rates        chat.Rates
	PollInterval time.Duration
	BaseURL      string
	RechargeURL  string

	Provider assistant.Provider
	Tools    chat.ToolRunner
	Ledger   chat.Ledger
	Counter  billing.TokenCounter
}

type ChatService struct {
	opts     ChatServiceOptions
	chats    ChatStore
	websites WebsiteLister
	balances BalanceReader
	registry *chat.Registry
	events   EventPublisher
	now      func() time.Time
}

func NewChatService(
	opts ChatServiceOptions,
	chats ChatStore,
	websites WebsiteLister,
	balances BalanceReader,
	registry *chat.Registry,
	events EventPublisher,
) *ChatService {
	return &ChatService{
		opts:     opts,
		chats:    chats,
		websites: websites,
		balances: balances,
		registry: registry,
		events:   events,
		now:      time.Now,
	}
}

func (s *ChatService) NewChat(ctx context.Context, userID string) (*model.ChatHistory, error) {
	hash := util.RandomString(chatHashLength, chatHashChars)
	title := "New Chat " + s.now().Format("2006-01-02 15:04")
	c, err := s.chats.Create(ctx, userID, hash, title)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return c, nil
}

type MessageRequest struct {
	Hash        string
	Text        string
	Nickname    string
	CurrentHTML string
	ImageURLs   []string
	Language    string
}

type MessageResult struct {
	Entries []model.ChatEntry `json:"entries"`
	Balance decimal.Decimal   `json:"balance"`
}

// SendMessage runs one exchange on the chat's live session, starting one
// when the chat has none, and appends the user line and the reply to the
// stored history. A busy session fails with SESSION_BUSY and stores nothing.
func (s *ChatService) SendMessage(ctx context.Context, user *model.User, req MessageRequest) (*MessageResult, error) {
	if strings.TrimSpace(req.Hash) == "" {
		return nil, apperrors.MissingRequired("hashchat")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.MissingRequired("message")
	}

	balance, err := s.balances.Balance(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !balance.IsPositive() {
		return nil, apperrors.InsufficientBalance(decimal.Zero, balance, s.opts.RechargeURL)
	}

	history, err := s.chats.FindByHash(ctx, user.ID, req.Hash)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if history == nil {
		return nil, apperrors.NotFound("Chat")
	}

	session, err := s.registry.GetOrCreate(ctx, req.Hash, func(ctx context.Context) (*chat.Session, error) {
		return s.startSession(ctx, user.ID, req, balance)
	})
	if err != nil {
		log.Error().Err(err).Str("chatHash", req.Hash).Msg("failed to start chat session")
		return nil, apperrors.External("assistant", err)
	}

	text := req.Text
	if req.Nickname != "" {
		text = req.Nickname + ": " + text
	}
	reply, err := session.PushUserMessage(ctx, text, req.ImageURLs)
	if err != nil {
		log.Error().Err(err).Str("chatHash", req.Hash).Msg("chat exchange failed")
		return nil, apperrors.External("assistant", err)
	}
	if reply.Busy {
		return nil, apperrors.SessionBusy()
	}
	s.registry.Touch(req.Hash)

	added := []model.ChatEntry{{Role: model.EntryRoleUser, Message: req.Text}}
	if reply.HTML != "" {
		added = append(added, model.ChatEntry{Role: model.EntryRoleDeployItem, Message: reply.HTML, DeployItem: true})
	} else {
		added = append(added, model.ChatEntry{Role: model.EntryRoleServer, Message: reply.Text})
	}
	stored, err := s.chats.Append(ctx, user.ID, req.Hash, added, config.ChatTitleMaxRunes)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !stored {
		return nil, apperrors.NotFound("Chat")
	}

	if current, err := s.balances.Balance(ctx, user.ID); err == nil {
		balance = current
	}
	result := &MessageResult{Entries: added, Balance: balance}
	s.notifyReply(ctx, user.ID, req.Hash, result)
	return result, nil
}

func (s *ChatService) startSession(ctx context.Context, userID string, req MessageRequest, balance decimal.Decimal) (*chat.Session, error) {
	threadID, err := chat.StartThread(ctx, s.opts.Provider, s.opts.Profile.ID, s.opts.Profile.Instructions,
		chat.InitialMessage(req.CurrentHTML), s.opts.PollInterval)
	if err != nil {
		return nil, err
	}
	session := chat.NewSession(chat.SessionOptions{
		Hash:         req.Hash,
		UserID:       userID,
		ThreadID:     threadID,
		AssistantID:  s.opts.Profile.ID,
		Instructions: s.opts.Profile.Instructions,
		Language:     req.Language,
		Balance:      balance,
		Rates:        s.opts.Rates,
		PollInterval: s.opts.PollInterval,
		Provider:     s.opts.Provider,
		Tools:        s.opts.Tools,
		Ledger:       s.opts.Ledger,
		Counter:      s.opts.Counter,
	})
	session.SetDocument(req.CurrentHTML)
	log.Info().Str("chatHash", req.Hash).Str("threadId", threadID).Str("userId", userID).Msg("chat session started")
	return session, nil
}

func (s *ChatService) notifyReply(ctx context.Context, userID, hash string, result *MessageResult) {
	if s.events == nil {
		return
	}
	event, err := sse.NewEvent(sse.EventChatReply, map[string]any{
		"hashchat": hash,
		"entries":  result.Entries,
		"balance":  result.Balance,
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, userID, event); err != nil {
		log.Warn().Err(err).Str("chatHash", hash).Msg("failed to publish chat reply event")
	}
}

type HistoryUpdate struct {
	Updated bool              `json:"updated"`
	History model.ChatEntries `json:"history,omitempty"`
}

// History returns the full history only when it grew past the known length.
func (s *ChatService) History(ctx context.Context, userID, hash string, known int) (*HistoryUpdate, error) {
	c, err := s.chats.FindByHash(ctx, userID, hash)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if c == nil {
		return nil, apperrors.NotFound("Chat")
	}
	if len(c.History) <= known {
		return &HistoryUpdate{}, nil
	}
	return &HistoryUpdate{Updated: true, History: c.History}, nil
}

func (s *ChatService) Latest(ctx context.Context, userID string) (*model.ChatHistory, error) {
	c, err := s.chats.FindLatest(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if c == nil {
		return nil, apperrors.NotFound("Chat")
	}
	return c, nil
}

func (s *ChatService) Delete(ctx context.Context, userID, hash string) error {
	n, err := s.chats.Delete(ctx, userID, hash)
	if err != nil {
		return apperrors.Database(err)
	}
	if n == 0 {
		return apperrors.NotFound("Chat")
	}
	s.dropSession(userID, hash)
	return nil
}

func (s *ChatService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	n, err := s.chats.DeleteAll(ctx, userID)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	for _, c := range chats {
		s.dropSession(userID, c.Hash)
	}
	return n, nil
}

func (s *ChatService) dropSession(userID, hash string) {
	if session, ok := s.registry.Lookup(hash); ok && session.UserID() == userID {
		s.registry.Remove(hash)
	}
}

type UserHistory struct {
	Chats    []model.ChatSummary `json:"chats"`
	Websites []model.Website     `json:"websites"`
}

// UserHistory lists chats and published sites. Site URLs are rebuilt from
// the stored file names so that rows written under an older URL scheme
// still resolve.
func (s *ChatService) UserHistory(ctx context.Context, userID string) (*UserHistory, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	sites, err := s.websites.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if chats == nil {
		chats = []model.ChatSummary{}
	}
	if sites == nil {
		sites = []model.Website{}
	}
	for i := range sites {
		sites[i].URL = SiteURL(s.opts.BaseURL, sites[i].FileName, sites[i].Name)
	}
	return &UserHistory{Chats: chats, Websites: sites}, nil
}

// SiteURL maps a stored file name to its public URL.
func SiteURL(baseURL, fileName, name string) string {
	base := strings.TrimRight(baseURL, "/")
	fileName = strings.TrimSpace(fileName)
	var path string
	switch {
	case fileName == "":
		path = fmt.Sprintf("/static/%s/%s/index.html", config.WebsitesDir, publish.Sanitize(name))
	case strings.HasPrefix(fileName, "/static/"+config.WebsitesDir+"/"):
		path = fileName
	case strings.HasPrefix(fileName, config.WebsitesDir+"/"):
		path = "/static/" + fileName
	default:
		path = "/static/" + config.WebsitesDir + "/" + strings.TrimPrefix(fileName, "/")
	}
	return base + path
}
