package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/authrequest"
)

// Hub tracks devices holding a WebSocket connection while they wait for their
// auth request to be decided. When the decision lands, every connection
// subscribed to that request receives one message and is closed.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	waiting map[uuid.UUID][]*subscriber
}

type subscriber struct {
	conn *websocket.Conn
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		waiting: make(map[uuid.UUID][]*subscriber),
	}
}

// decisionMessage is the wire format delivered to waiting devices.
type decisionMessage struct {
	ID           string     `json:"id"`
	Approved     bool       `json:"approved"`
	Key          string     `json:"key,omitempty"`
	ResponseDate *time.Time `json:"response_date,omitempty"`
}

// Handler upgrades the connection and parks it until the request named by the
// "id" query parameter is decided or the client goes away.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "invalid auth request id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{"keygate-device-v1"},
		})
		if err != nil {
			h.logger.Error("websocket accept failed", slog.String("error", err.Error()))
			return
		}

		sub := &subscriber{conn: conn, done: make(chan struct{})}
		h.add(requestID, sub)
		defer h.remove(requestID, sub)

		// Block until notified or the client disconnects. Reads are discarded;
		// the device has nothing to say until the decision arrives.
		readErr := make(chan struct{})
		go func() {
			for {
				if _, _, err := conn.Read(r.Context()); err != nil {
					close(readErr)
					return
				}
			}
		}()

		select {
		case <-sub.done:
			conn.Close(websocket.StatusNormalClosure, "auth request decided")
		case <-readErr:
		case <-r.Context().Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	})
}

// Notify delivers the decision to every connection waiting on the request and
// returns how many were notified.
func (h *Hub) Notify(ctx context.Context, processed *authrequest.AuthRequest) int {
	h.mu.Lock()
	subs := h.waiting[processed.ID]
	delete(h.waiting, processed.ID)
	h.mu.Unlock()

	if len(subs) == 0 {
		return 0
	}

	msg := decisionMessage{
		ID:           processed.ID.String(),
		Approved:     processed.IsApproved(),
		Key:          processed.Key,
		ResponseDate: processed.ResponseDate,
	}
	data, _ := json.Marshal(msg)

	notified := 0
	for _, sub := range subs {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := sub.conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Warn("websocket delivery failed",
				slog.String("auth_request_id", processed.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			notified++
		}
		close(sub.done)
	}
	return notified
}

func (h *Hub) add(requestID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waiting[requestID] = append(h.waiting[requestID], sub)
}

func (h *Hub) remove(requestID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.waiting[requestID]
	for i, s := range subs {
		if s == sub {
			h.waiting[requestID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.waiting[requestID]) == 0 {
		delete(h.waiting, requestID)
	}
}
