package http

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"poker-quiz-bot/internal/app"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	errNoClients = errors.New("chat has no connected clients")
	errUnknown   = errors.New("user not seen")
)

type questionPayload struct {
	Handle     string   `json:"handle"`
	QuestionID int      `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

type textPayload struct {
	Text string `json:"text"`
}

type deletePayload struct {
	Handle string `json:"handle"`
}

// client is one websocket connection subscribed to a chat. A connection whose
// chat id equals its user id is that user's private channel.
type client struct {
	chatID int64
	userID int64
	name   string
	send   chan outboundMessage[any]
}

// Hub routes outbound quiz messages to connected websocket clients by chat
// id. It implements app.Transport.
type Hub struct {
	log   zerolog.Logger
	mu    sync.RWMutex
	chats map[int64]map[*client]struct{}
	names map[int64]string
}

var _ app.Transport = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:   log.With().Str("component", "ws_hub").Logger(),
		chats: make(map[int64]map[*client]struct{}),
		names: make(map[int64]string),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.chats[c.chatID]
	if !ok {
		set = make(map[*client]struct{})
		h.chats[c.chatID] = set
	}
	set[c] = struct{}{}
	if c.name != "" {
		h.names[c.userID] = c.name
	}
}

// unregister must run before the client's send channel is closed.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.chats[c.chatID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.chats, c.chatID)
	}
}

// deliver queues msg for every client in the chat without blocking. It fails
// when the chat has no client able to take the message.
func (h *Hub) deliver(chatID int64, msg outboundMessage[any]) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.chats[chatID]
	if len(set) == 0 {
		return errNoClients
	}
	delivered := 0
	for c := range set {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.log.Warn().Int64("chat_id", chatID).Int64("user_id", c.userID).Msg("client send buffer full, dropping message")
		}
	}
	if delivered == 0 {
		return fmt.Errorf("chat %d: all client buffers full", chatID)
	}
	return nil
}

func (h *Hub) SendChoicePrompt(_ context.Context, chatID int64, prompt app.Prompt) (string, error) {
	handle := uuid.NewString()
	err := h.deliver(chatID, outboundMessage[any]{Type: "question", Payload: questionPayload{
		Handle:     handle,
		QuestionID: prompt.QuestionID,
		Text:       prompt.Text,
		Options:    prompt.Options,
	}})
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (h *Hub) SendText(_ context.Context, chatID int64, text string) error {
	return h.deliver(chatID, outboundMessage[any]{Type: "text", Payload: textPayload{Text: text}})
}

func (h *Hub) DeleteMessage(_ context.Context, chatID int64, handle string) error {
	return h.deliver(chatID, outboundMessage[any]{Type: "delete", Payload: deletePayload{Handle: handle}})
}

// ParticipantCount counts distinct connected users plus the bot itself.
func (h *Hub) ParticipantCount(_ context.Context, chatID int64) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[int64]struct{})
	for c := range h.chats[chatID] {
		users[c.userID] = struct{}{}
	}
	return len(users) + 1, nil
}

func (h *Hub) ResolveFriendlyName(_ context.Context, userID int64) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	name, ok := h.names[userID]
	if !ok {
		return "", errUnknown
	}
	return name, nil
}
