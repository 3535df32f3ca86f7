// Package chat keeps the in-game chat log. Chat rides the same channel as
// the game but is independent of phase.
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quizbattle/client/internal/channel"
	"github.com/quizbattle/client/internal/protocol"
)

type Message struct {
	ID       string
	SenderID string
	Username string
	Text     string
	SentAt   time.Time
}

type Log struct {
	ch       channel.Channel
	senderID string
	onAppend func(Message)

	mu       sync.Mutex
	messages []Message
}

// NewLog subscribes to server messages. The greeting entry mirrors what
// players expect to see before anyone has spoken.
func NewLog(ch channel.Channel, senderID string, onAppend func(Message)) *Log {
	l := &Log{
		ch:       ch,
		senderID: senderID,
		onAppend: onAppend,
		messages: []Message{{
			ID:       uuid.NewString(),
			Username: "System",
			Text:     "Welcome to the game chat!",
			SentAt:   time.Now(),
		}},
	}
	ch.On(protocol.EventServerMessage, l.handleMessage)
	return l
}

// Send emits one chat message to the authority. The local log is not
// updated here; the authority echoes messages back to every participant.
func (l *Log) Send(text string) error {
	return l.ch.Emit(protocol.EventClientMessage, protocol.ChatMessage{
		ID:        uuid.NewString(),
		SenderID:  l.senderID,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Messages returns a copy of the log in arrival order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Stop() {
	l.ch.Off(protocol.EventServerMessage)
}

func (l *Log) handleMessage(data json.RawMessage) {
	var wire protocol.ChatMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		log.Warn().Err(err).Msg("dropping malformed chat message")
		return
	}
	msg := Message{
		ID:       wire.ID,
		SenderID: wire.SenderID,
		Username: wire.Username,
		Text:     wire.Text,
		SentAt:   time.Now(),
	}
	if t, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
		msg.SentAt = t
	}
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
	if l.onAppend != nil {
		l.onAppend(msg)
	}
}
