package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChatEntry is one line of a persisted conversation.
type ChatEntry struct {
	Role       EntryRole `json:"role"`
	Message    string    `json:"message"`
	DeployItem bool      `json:"deploy_item"`
}

// ChatEntries is stored as a JSONB array.
type ChatEntries []ChatEntry

func (e ChatEntries) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

func (e *ChatEntries) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*e = ChatEntries{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("chat entries: unsupported scan type %T", src)
	}
	return json.Unmarshal(data, e)
}

type ChatHistory struct {
	ID        string      `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"userId"`
	Hash      string      `db:"hashchat" json:"hashchat"`
	Title     string      `db:"title" json:"title"`
	History   ChatEntries `db:"history" json:"history"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// ChatSummary is a history listing row without the entries.
type ChatSummary struct {
	Hash      string    `db:"hashchat" json:"hashchat"`
	Title     string    `db:"title" json:"title"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
