package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	redisclient "github.com/strawberry/sitebuilder-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBuffer      = 32
)

const (
	EventChatReply = "chat.reply"
	EventBalance   = "balance"
	EventConnected = "connected"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

type Client struct {
	UserID string
	Events chan Event
	Done   chan struct{}
}

// Broker fans events out to the SSE connections of a user. With a Redis
// client events travel through pub/sub so every instance sees them;
// without one they stay in process.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool
	stops   map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(userID string) *Client {
	client := &Client{
		UserID: userID,
		Events: make(chan Event, clientBuffer),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[userID] == nil {
		b.clients[userID] = make(map[*Client]bool)
		if b.redis != nil {
			subCtx, stop := context.WithCancel(b.ctx)
			b.stops[userID] = stop
			go b.subscribeToRedis(subCtx, userID)
		}
	}
	b.clients[userID][client] = true
	clientCount := len(b.clients[userID])
	b.mu.Unlock()

	log.Info().
		Str("userId", userID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Done)
	if len(clients) == 0 {
		delete(b.clients, client.UserID)
		if stop, ok := b.stops[client.UserID]; ok {
			stop()
			delete(b.stops, client.UserID)
		}
	}

	log.Info().
		Str("userId", client.UserID).
		Int("clientCount", len(clients)).
		Msg("sse client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, userID string, event Event) error {
	if b.redis == nil {
		b.broadcast(userID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.UserEventsChannel(userID), data).Err()
}

// BalanceChanged pushes the new balance to the user's open streams.
func (b *Broker) BalanceChanged(userID string, balance decimal.Decimal) {
	event, err := NewEvent(EventBalance, map[string]any{"balance": balance})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
	defer cancel()
	if err := b.Publish(ctx, userID, event); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to publish balance event")
	}
}

func (b *Broker) subscribeToRedis(ctx context.Context, userID string) {
	channel := redisclient.UserEventsChannel(userID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("userId", userID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}
			b.broadcast(userID, event)
		}
	}
}

func (b *Broker) broadcast(userID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[userID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("userId", userID).
				Str("eventType", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.stops = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[userID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
