package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"brocode-session-service/internal/app"
	"brocode-session-service/internal/domain"
)

// ControllerFactory builds a session controller for one connection. The
// session key ties the participant to their persisted countdown.
type ControllerFactory func(sessionKey string) *app.Controller

// SessionHandler owns the websocket surface of a challenge session: one
// connection drives one controller for its whole lifetime, and closing the
// connection tears the session down (timer included).
type SessionHandler struct {
	newController ControllerFactory
	upgrader      websocket.Upgrader
}

func NewSessionHandler(factory ControllerFactory) *SessionHandler {
	return &SessionHandler{
		newController: factory,
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

type navigatePayload struct {
	Ordinal   *int   `json:"ordinal,omitempty"`
	Direction string `json:"direction,omitempty"` // next | prev
}

type editPayload struct {
	Text string `json:"text"`
}

type markPayload struct {
	Status domain.Status `json:"status"`
}

type submitPayload struct {
	Confirm bool `json:"confirm"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type sessionPayload struct {
	State     app.State           `json:"state"`
	Current   int                 `json:"current"`
	Remaining int                 `json:"remaining"`
	Questions []domain.Submission `json:"questions"`
}

type tickPayload struct {
	Remaining int    `json:"remaining"`
	Clock     string `json:"clock"`
}

type execPayload struct {
	Question domain.Submission `json:"question"`
	Status   app.ExecStatus    `json:"status"`
}

// ServeWS upgrades the request and runs a challenge session over it.
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session")
	if sessionKey == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := h.newController(sessionKey)
	if err := ctrl.Start(ctx); err != nil {
		// Fatal initialization: a blocking error is the only thing the
		// client gets before the connection closes.
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "fatal", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	var wg sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Forward countdown ticks; when the timer fires, the auto-submit result
	// follows the final tick.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticks := ctrl.Timer().Ticks()
		for {
			select {
			case <-ctx.Done():
				return
			case remaining, ok := <-ticks:
				if !ok {
					return
				}
				h.push(ctx, send, "tick", tickPayload{Remaining: remaining, Clock: ctrl.Timer().Clock()})
				if remaining == 0 {
					if summary, ok := ctrl.Result(); ok {
						h.push(ctx, send, "result", summary)
					}
					return
				}
			}
		}
	}()

	h.push(ctx, send, "session", snapshotOf(ctrl))

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, ctrl, send, &wg, inbound)
	}

	cancel()
	wg.Wait()
	close(send)
	<-writerDone
}

func (h *SessionHandler) dispatch(ctx context.Context, ctrl *app.Controller, send chan outboundMessage[any], wg *sync.WaitGroup, inbound inboundMessage) {
	switch inbound.Type {
	case "navigate":
		var payload navigatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.pushErr(ctx, send, "invalid navigate payload")
			return
		}
		var err error
		switch {
		case payload.Ordinal != nil:
			err = ctrl.SetCurrent(*payload.Ordinal)
		case payload.Direction == "next":
			err = ctrl.Next()
		case payload.Direction == "prev":
			err = ctrl.Prev()
		default:
			err = domain.ErrOrdinalOutOfRange
		}
		if err != nil {
			h.pushErr(ctx, send, err.Error())
			return
		}
		h.push(ctx, send, "session", snapshotOf(ctrl))

	case "edit":
		var payload editPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.pushErr(ctx, send, "invalid edit payload")
			return
		}
		if err := ctrl.Edit(payload.Text); err != nil {
			h.pushErr(ctx, send, err.Error())
			return
		}

	case "mark":
		var payload markPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.pushErr(ctx, send, "invalid mark payload")
			return
		}
		// The persist call must not block further input; rollback on failure
		// is surfaced through the next snapshot.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctrl.Mark(ctx, payload.Status); err != nil {
				h.pushErr(ctx, send, err.Error())
			}
			h.push(ctx, send, "session", snapshotOf(ctrl))
		}()

	case "execute":
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := ctrl.Execute(ctx)
			if err != nil {
				h.pushErr(ctx, send, err.Error())
			}
			//rec is zero when no record was resolved, e.g. after the
			// session ended; only the error envelope goes out then.
			if rec.QuestionID != "" {
				h.push(ctx, send, "execResult", execPayload{Question: rec, Status: ctrl.ExecStatusOf(rec.QuestionID)})
			}
			h.push(ctx, send, "session", snapshotOf(ctrl))
		}()

	case "submit":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.pushErr(ctx, send, "invalid submit payload")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := ctrl.Submit(ctx, payload.Confirm)
			if err != nil {
				h.pushErr(ctx, send, err.Error())
				return
			}
			h.push(ctx, send, "result", summary)
		}()

	case "fullscreen":
		// Viewport-only shortcut; acknowledged, no session-state effect.
		h.push(ctx, send, "fullscreen", struct{}{})

	default:
		h.pushErr(ctx, send, "unsupported message type")
	}
}

func (h *SessionHandler) push(ctx context.Context, send chan outboundMessage[any], typ string, payload any) {
	select {
	case send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-ctx.Done():
	}
}

func (h *SessionHandler) pushErr(ctx context.Context, send chan outboundMessage[any], msg string) {
	h.push(ctx, send, "error", errorPayload{Message: msg})
}

func snapshotOf(ctrl *app.Controller) sessionPayload {
	current := 0
	if rec, err := ctrl.Current(); err == nil {
		current = rec.Ordinal
	}
	remaining := 0
	if t := ctrl.Timer(); t != nil {
		remaining = t.Remaining()
	}
	return sessionPayload{
		State:     ctrl.State(),
		Current:   current,
		Remaining: remaining,
		Questions: ctrl.Snapshot(),
	}
}
