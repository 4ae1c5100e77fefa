package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/service"
	"github.com/strawberry/sitebuilder-go/internal/sse"
)

// EventsHandler streams chat replies and balance changes to the logged-in user.
type EventsHandler struct {
	broker   *sse.Broker
	balances service.BalanceReader
}

func NewEventsHandler(broker *sse.Broker, balances service.BalanceReader) *EventsHandler {
	return &EventsHandler{broker: broker, balances: balances}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(user.ID)
	defer h.broker.Unsubscribe(client)

	ctx := r.Context()
	log.Info().Str("userId", user.ID).Msg("sse connection established")

	connected := map[string]any{"userId": user.ID}
	if h.balances != nil {
		if balance, err := h.balances.Balance(ctx, user.ID); err == nil {
			connected["balance"] = balance
		}
	}
	if err := h.sendEvent(w, flusher, sse.EventConnected, connected); err != nil {
		return
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("userId", user.ID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("userId", user.ID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("userId", user.ID).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("userId", user.ID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
