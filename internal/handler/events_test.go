package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry/sitebuilder-go/internal/middleware"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/sse"
)

type staticBalances map[string]decimal.Decimal

func (s staticBalances) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	return s[userID], nil
}

func asUser(user *model.User, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), user)))
	})
}

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 401 without a user", func(t *testing.T) {
		handler := NewEventsHandler(nil, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unauthorized")
	})

	t.Run("streams connected then published events", func(t *testing.T) {
		broker := sse.NewBroker(nil)
		defer broker.Close()
		user := &model.User{ID: "u1"}
		handler := NewEventsHandler(broker, staticBalances{"u1": decimal.RequireFromString("3.25")})

		srv := httptest.NewServer(asUser(user, handler))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		reader := bufio.NewReader(resp.Body)

		eventType, data := readEvent(t, reader)
		assert.Equal(t, sse.EventConnected, eventType)
		assert.Contains(t, data, `"3.25"`)

		require.Eventually(t, func() bool { return broker.ClientCount("u1") == 1 }, time.Second, 10*time.Millisecond)
		event, err := sse.NewEvent(sse.EventChatReply, map[string]string{"hashchat": "abc"})
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, "u1", event))

		eventType, data = readEvent(t, reader)
		assert.Equal(t, sse.EventChatReply, eventType)
		assert.JSONEq(t, `{"hashchat":"abc"}`, data)
	})
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var eventType, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && eventType != "":
			return eventType, data
		}
	}
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: sse.EventBalance,
		Data: json.RawMessage(`{"balance":"1.5"}`),
	})

	assert.NoError(t, err)
	assert.Equal(t, "event: balance\ndata: {\"balance\":\"1.5\"}\n\n", rec.Body.String())
}
