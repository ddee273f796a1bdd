package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"qrquest/internal/app"
	"qrquest/internal/domain"
)

const writeWait = 10 * time.Second

// IdentityPrefix namespaces websocket identities apart from Telegram user ids.
const IdentityPrefix = "ws:"

// Handler is the quest engine surface the websocket transport drives.
type Handler interface {
	OnScan(ctx context.Context, identity, nickname, questionID string) ([]domain.Reply, error)
	OnText(ctx context.Context, identity, nickname, text string) ([]domain.Reply, error)
	OnAdminCommand(ctx context.Context, identity, command string) ([]domain.Reply, error)
}

type WSHandler struct {
	engine   Handler
	hub      *Hub
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine Handler, hub *Hub, logger logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		log:    logger.WithField("component", "ws"),
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

type scanPayload struct {
	QuestionID string `json:"questionId"`
}

type textPayload struct {
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type noticePayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and relays chat events to the engine.
// Query: identity (required), nickname (optional).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	rawIdentity := strings.TrimSpace(r.URL.Query().Get("identity"))
	nickname := strings.TrimSpace(r.URL.Query().Get("nickname"))
	if rawIdentity == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	identity := IdentityPrefix + rawIdentity
	entry := h.log.WithField("identity", identity)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		entry.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := newWSClient()
	h.hub.register(identity, client)
	defer h.hub.unregister(identity, client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-client.send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					entry.WithError(err).Debug("ws write error")
					client.stop()
					_ = conn.Close()
					return
				}
			case <-client.done:
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var (
			replies []domain.Reply
			err     error
		)
		switch inbound.Type {
		case "scan":
			var payload scanPayload
			if json.Unmarshal(inbound.Payload, &payload) != nil {
				client.push(errorMessage("bad_request", "invalid scan payload"))
				continue
			}
			replies, err = h.engine.OnScan(ctx, identity, nickname, payload.QuestionID)
		case "text", "command":
			var payload textPayload
			if json.Unmarshal(inbound.Payload, &payload) != nil {
				client.push(errorMessage("bad_request", "invalid text payload"))
				continue
			}
			if inbound.Type == "command" || app.IsAdminCommand(payload.Text) {
				replies, err = h.engine.OnAdminCommand(ctx, identity, payload.Text)
			} else {
				replies, err = h.engine.OnText(ctx, identity, nickname, payload.Text)
			}
		default:
			client.push(errorMessage("bad_request", "unsupported message type"))
			continue
		}

		for _, reply := range replies {
			client.push(outboundMessage[any]{Type: "reply", Payload: reply})
		}
		if err != nil {
			if !app.IsUserError(err) {
				entry.WithError(err).Error("handle ws message")
			}
			client.push(errorMessage(errorCode(err), err.Error()))
		}
	}

	client.stop()
	<-writerDone
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, domain.ErrQuestClosed):
		return "quest_closed"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "internal"
	}
}
