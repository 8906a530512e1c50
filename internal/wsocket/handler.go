package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"interchat_go_backend/internal/broker"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageBytes = 64 << 10
)

type Handler struct {
	messages *services.MessageService
	broker   broker.MessageBroker
	upgrader websocket.Upgrader
}

// Frame is a client to server message.
type Frame struct {
	Type            string `json:"type"`
	Content         string `json:"content,omitempty"`
	SourceLanguage  string `json:"source_language,omitempty"`
	TargetLanguage  string `json:"target_language,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	Language        string `json:"language,omitempty"`
}

type errorPayload struct {
	Type            apperrors.ErrorType `json:"type"`
	Message         string              `json:"message"`
	ClientMessageID string              `json:"client_message_id,omitempty"`
}

func NewHandler(messages *services.MessageService, b broker.MessageBroker, upgrader websocket.Upgrader) *Handler {
	return &Handler{
		messages: messages,
		broker:   b,
		upgrader: upgrader,
	}
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	log := zerolog.Ctx(r.Context()).With().Str("user_id", user.ID.String()).Logger()

	roomID, err := uuid.Parse(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.messages.AuthorizeRoom(r.Context(), user, roomID); err != nil {
		customErr := apperrors.As(err)
		http.Error(w, customErr.Message, customErr.StatusCode)
		return
	}
	log = log.With().Str("room_id", roomID.String()).Logger()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn := &connection{conn: ws}
	defer ws.Close()

	ctx, cancel := context.WithCancel(log.WithContext(context.Background()))
	defer cancel()

	viewerLang := services.NormalizeLanguage(r.URL.Query().Get("lang"))
	if r.URL.Query().Get("lang") == "" {
		viewerLang = services.NormalizeLanguage(user.PreferredLanguage)
	}
	var langMu sync.RWMutex
	currentLang := func() string {
		langMu.RLock()
		defer langMu.RUnlock()
		return viewerLang
	}

	roomTopic := broker.RoomTopic(roomID.String())
	creditTopic := broker.CreditTopic(user.ID.String())
	roomEvents := h.broker.Subscribe(roomTopic)
	defer h.broker.Unsubscribe(roomTopic, roomEvents)
	creditEvents := h.broker.Subscribe(creditTopic)
	defer h.broker.Unsubscribe(creditTopic, creditEvents)

	ws.SetReadLimit(maxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-roomEvents:
				if !ok {
					return
				}
				if err := conn.write(EventForViewer(evt, currentLang())); err != nil {
					log.Debug().Err(err).Msg("Failed to deliver room event")
					cancel()
					return
				}
			case evt, ok := <-creditEvents:
				if !ok {
					return
				}
				if err := conn.write(evt); err != nil {
					log.Debug().Err(err).Msg("Failed to deliver credit update")
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, apperrors.New400Error("Malformed frame"), "")
			continue
		}

		switch frame.Type {
		case services.EventMessage:
			_, err := h.messages.SendMessage(ctx, user, services.SendMessageRequest{
				RoomID:          roomID,
				AuthorID:        user.ID,
				Content:         frame.Content,
				SourceLanguage:  frame.SourceLanguage,
				TargetLanguage:  frame.TargetLanguage,
				ClientMessageID: frame.ClientMessageID,
				Source:          "websocket",
			})
			if err != nil {
				// the stored message reaches this connection through the room topic
				h.sendError(conn, err, frame.ClientMessageID)
			}
		case "set_language":
			if !services.IsSupportedLanguage(frame.Language) {
				h.sendError(conn, apperrors.New400Error("Unsupported language"), "")
				continue
			}
			langMu.Lock()
			viewerLang = services.NormalizeLanguage(frame.Language)
			langMu.Unlock()
		default:
			log.Debug().Str("frame_type", frame.Type).Msg("Unknown frame type")
		}
	}
}

func (h *Handler) sendError(conn *connection, err error, clientMessageID string) {
	customErr := apperrors.As(err)
	evt, encErr := broker.NewEvent(services.EventError, errorPayload{
		Type:            customErr.Type,
		Message:         customErr.Message,
		ClientMessageID: clientMessageID,
	})
	if encErr != nil {
		return
	}
	conn.write(evt)
}

// EventForViewer drops the translation from a message event unless it is in the
// viewer's language, so each client sees either its own translation or the raw text.
func EventForViewer(evt broker.Event, lang string) broker.Event {
	if evt.Type != services.EventMessage {
		return evt
	}
	var payload services.MessageEvent
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return evt
	}
	if payload.Translation == nil || payload.Translation.TargetLanguage == lang {
		return evt
	}
	payload.Translation = nil
	out, err := broker.NewEvent(evt.Type, payload)
	if err != nil {
		return evt
	}
	return out
}
