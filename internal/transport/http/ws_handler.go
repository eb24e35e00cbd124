package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"poker-quiz-bot/internal/app"
	"poker-quiz-bot/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type WSHandler struct {
	service  *app.QuizService
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		log:     log.With().Str("component", "ws_handler").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int `json:"questionId"`
	Option     int `json:"option"`
}

type leaderboardPayload struct {
	Limit int `json:"limit"`
}

type joinedPayload struct {
	ChatID int64  `json:"chatId"`
	UserID int64  `json:"userId"`
	Mode   string `json:"mode"`
}

type cancelledPayload struct {
	Cancelled bool `json:"cancelled"`
}

type scorePayload struct {
	Found  bool               `json:"found"`
	Record domain.ScoreRecord `json:"record"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// use cases. Every connection belongs to one chat; outbound quiz traffic for
// that chat arrives through the hub.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID, errChat := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	userID, errUser := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	displayName := r.URL.Query().Get("name")
	if errChat != nil || errUser != nil || displayName == "" {
		http.Error(w, "missing chatId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{
		chatID: chatID,
		userID: userID,
		name:   displayName,
		send:   make(chan outboundMessage[any], 32),
	}
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Int64("chat_id", chatID).Msg("ws write error")
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case c.send <- msg:
		case <-writerDone:
		}
	}

	h.hub.register(c)
	ctx := r.Context()
	if chatID == userID {
		h.service.EnableDM(ctx, userID)
	} else {
		h.service.ActivateChat(ctx, chatID)
	}
	h.log.Info().Int64("chat_id", chatID).Int64("user_id", userID).Msg("client connected")
	reply(outboundMessage[any]{Type: "joined", Payload: joinedPayload{ChatID: chatID, UserID: userID, Mode: string(h.service.Mode())}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, c, inbound, reply)
	}

	h.hub.unregister(c)
	close(c.send)
	<-writerDone
	h.log.Info().Int64("chat_id", chatID).Int64("user_id", userID).Msg("client disconnected")
}

// dispatch handles one inbound command. A panic is logged and reported to
// the client without tearing down the connection.
func (h *WSHandler) dispatch(ctx context.Context, c *client, inbound inboundMessage, reply func(outboundMessage[any])) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error().Interface("panic", rec).Str("type", inbound.Type).Msg("recovered from panic in handler")
			reply(errorMessage("internal error"))
		}
	}()

	switch inbound.Type {
	case "quiz":
		if _, err := h.service.OpenOrShowSession(ctx, c.chatID); err != nil {
			reply(errorMessage(userMessage(err)))
		}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			reply(errorMessage("invalid answer payload"))
			return
		}
		res, err := h.service.RecordAnswerRequest(ctx, c.chatID, c.userID, payload.QuestionID, payload.Option)
		if err != nil {
			reply(errorMessage(userMessage(err)))
			return
		}
		reply(outboundMessage[any]{Type: "answerResult", Payload: res})
	case "cancel":
		reply(outboundMessage[any]{Type: "cancelled", Payload: cancelledPayload{Cancelled: h.service.CancelSession(ctx, c.chatID)}})
	case "explain":
		// the explanation itself reaches the chat through the hub
		if _, err := h.service.RequestExplanation(ctx, c.chatID); err != nil {
			reply(errorMessage(userMessage(err)))
		}
	case "leaderboard":
		var payload leaderboardPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(errorMessage("invalid leaderboard payload"))
				return
			}
		}
		entries, err := h.service.Leaderboard(ctx, payload.Limit)
		if err != nil {
			h.log.Error().Err(err).Msg("leaderboard failed")
			reply(errorMessage("leaderboard unavailable"))
			return
		}
		reply(outboundMessage[any]{Type: "leaderboard", Payload: entries})
	case "score":
		rec, ok, err := h.service.UserStats(ctx, c.userID)
		if err != nil {
			h.log.Error().Err(err).Int64("user_id", c.userID).Msg("user stats failed")
			reply(errorMessage("stats unavailable"))
			return
		}
		reply(outboundMessage[any]{Type: "score", Payload: scorePayload{Found: ok, Record: rec}})
	case "stop":
		h.service.DeactivateChat(ctx, c.chatID)
	default:
		reply(errorMessage("unsupported message type"))
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "You already answered this question."
	case errors.Is(err, domain.ErrSessionClosed):
		return "This question is closed."
	case errors.Is(err, domain.ErrInvalidOption):
		return "That option does not exist."
	case errors.Is(err, domain.ErrNoPrecedingQuestion):
		return "No quiz has been closed yet."
	case errors.Is(err, domain.ErrTransport):
		return "Could not deliver the message, try again later."
	default:
		return "internal error"
	}
}

// LeaderboardHandler serves the top scorers as JSON. ?limit= overrides the default of 10.
func LeaderboardHandler(service *app.QuizService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := service.Leaderboard(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("leaderboard failed")
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []domain.ScoreRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}
}
