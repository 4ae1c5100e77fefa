package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.Events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroker_LocalFanOut(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	t.Run("delivers to every client of the user only", func(t *testing.T) {
		a1 := b.Subscribe("u1")
		a2 := b.Subscribe("u1")
		other := b.Subscribe("u2")
		defer b.Unsubscribe(a1)
		defer b.Unsubscribe(a2)
		defer b.Unsubscribe(other)

		event, err := NewEvent(EventChatReply, map[string]string{"text": "hi"})
		require.NoError(t, err)
		require.NoError(t, b.Publish(context.Background(), "u1", event))

		assert.Equal(t, EventChatReply, receive(t, a1).Type)
		assert.Equal(t, EventChatReply, receive(t, a2).Type)
		assert.Len(t, other.Events, 0)
	})

	t.Run("balance changes become balance events", func(t *testing.T) {
		c := b.Subscribe("u3")
		defer b.Unsubscribe(c)

		b.BalanceChanged("u3", decimal.RequireFromString("4.96"))

		e := receive(t, c)
		assert.Equal(t, EventBalance, e.Type)
		var body map[string]string
		require.NoError(t, json.Unmarshal(e.Data, &body))
		assert.Equal(t, "4.96", body["balance"])
	})

	t.Run("unsubscribe closes done once and drops the user", func(t *testing.T) {
		c := b.Subscribe("u4")
		assert.Equal(t, 1, b.ClientCount("u4"))

		b.Unsubscribe(c)
		b.Unsubscribe(c)

		_, open := <-c.Done
		assert.False(t, open)
		assert.Equal(t, 0, b.ClientCount("u4"))
	})

	t.Run("full buffers drop instead of blocking", func(t *testing.T) {
		c := b.Subscribe("u5")
		defer b.Unsubscribe(c)

		for i := 0; i < clientBuffer+5; i++ {
			require.NoError(t, b.Publish(context.Background(), "u5", Event{Type: "x", Data: json.RawMessage(`{}`)}))
		}
		assert.Len(t, c.Events, clientBuffer)
	})
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(nil)
	c1 := b.Subscribe("u1")
	c2 := b.Subscribe("u2")
	assert.Equal(t, 2, b.TotalClients())

	b.Close()

	_, open := <-c1.Done
	assert.False(t, open)
	_, open = <-c2.Done
	assert.False(t, open)
	assert.Equal(t, 0, b.TotalClients())
}
