package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Message is the envelope every frame on a stream uses.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Upgrader builds the websocket upgrader. An empty allowedOrigins list
// accepts any origin (development).
func Upgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

// Stream is one server-push websocket connection.
//
// PUMPS:
// A websocket connection supports one concurrent writer and one concurrent
// reader. Run owns both: a write pump drains the send channel (plus pings),
// and a read pump consumes client frames so pongs and close frames are seen.
// Everybody else only ever calls Send.
type Stream struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	logger  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Accept upgrades the request. On failure the upgrader has already written
// an HTTP error response.
func Accept(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, logger *slog.Logger) (*Stream, error) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Stream{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		// inbound frames: 5/s sustained, bursts of 10
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logger:  logger,
		closed:  make(chan struct{}),
	}, nil
}

// Send queues a message. It returns false when the stream is closed or the
// client is too slow to keep up (the message is dropped).
func (s *Stream) Send(msgType string, data any) bool {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		s.logger.Error("realtime: marshal message", slog.String("type", msgType), slog.String("error", err.Error()))
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	case <-s.closed:
		return false
	default:
		return false
	}
}

// Done is closed once the connection is gone.
func (s *Stream) Done() <-chan struct{} { return s.closed }

// Run pumps the connection until the client leaves or ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	go s.readPump()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-s.closed:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only understands {"type":"ping"}, answered with a pong message.
// Everything else is ignored.
func (s *Stream) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("realtime: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		if !s.limiter.Allow() {
			continue
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			s.Send("pong", nil)
		}
	}
}

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
