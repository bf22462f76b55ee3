package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mertoncli/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Poll period used when the config leaves it out
	defaultInterval = 500 * time.Millisecond
)

// Message types sent to stream subscribers
const (
	TypeUpdate   = "update"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Message is the envelope of every frame written to a subscriber
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PollFunc reports the current state of the streamed resource. done is true
// once the state is final and the stream should close after sending it.
type PollFunc func(ctx context.Context) (payload interface{}, done bool, err error)

// StreamerConfig configures a Streamer. Zero durations take defaults.
type StreamerConfig struct {
	Interval   time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	// AllowedOrigins lists origins allowed to subscribe besides the server
	// host itself. "*" allows any origin.
	AllowedOrigins []string
}

// Streamer pushes state changes of a polled resource to websocket subscribers.
// Every connection is served on the caller's goroutine; a second goroutine
// only drains control frames.
type Streamer struct {
	upgrader   websocket.Upgrader
	interval   time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	origins    []string
	logger     *slog.Logger
}

// NewStreamer creates a Streamer
func NewStreamer(cfg StreamerConfig, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	s := &Streamer{
		interval:   cfg.Interval,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod,
		origins:    cfg.AllowedOrigins,
		logger:     logger.With(slog.String("component", "websocket.stream")),
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.pongWait <= 0 {
		s.pongWait = 60 * time.Second
	}
	// Pings must go out before the peer's pong deadline expires
	if s.pingPeriod <= 0 || s.pingPeriod >= s.pongWait {
		s.pingPeriod = (s.pongWait * 9) / 10
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Serve upgrades the request and streams poll results until the resource is
// done, the peer goes away or the request context ends. Frames are only
// written when the payload differs from the last one sent. A failed upgrade
// has already been answered with an HTTP error when Serve returns.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, poll PollFunc) error {
	ctx := r.Context()
	streamID := uuid.New().String()
	logger := infrastructure.LoggerWithContext(ctx, s.logger).With(slog.String("stream_id", streamID))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")))
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	defer conn.Close()

	connectedAt := time.Now()
	logger.InfoContext(ctx, "stream subscriber connected", slog.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readPump(ctx, conn, cancel, logger)

	sent := 0
	defer func() {
		logger.InfoContext(ctx, "stream subscriber disconnected",
			slog.Duration("connection_duration", time.Since(connectedAt)),
			slog.Int("messages_sent", sent))
	}()

	pollTicker := time.NewTicker(s.interval)
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(s.pingPeriod)
	defer pingTicker.Stop()

	var last []byte
	for {
		payload, done, err := poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WarnContext(ctx, "stream poll failed", slog.String("error", err.Error()))
			data, _ := json.Marshal(map[string]string{"error": err.Error()})
			s.write(conn, Message{Type: TypeError, Data: data, Timestamp: time.Now().UTC()})
			s.close(conn, websocket.CloseInternalServerErr, "poll failed")
			return err
		}

		data, err := json.Marshal(payload)
		if err != nil {
			s.close(conn, websocket.CloseInternalServerErr, "encoding failed")
			return fmt.Errorf("encode stream payload: %w", err)
		}

		if done || !bytes.Equal(data, last) {
			msgType := TypeUpdate
			if done {
				msgType = TypeComplete
			}
			if err := s.write(conn, Message{Type: msgType, Data: data, Timestamp: time.Now().UTC()}); err != nil {
				logger.DebugContext(ctx, "stream write failed", slog.String("error", err.Error()))
				return nil
			}
			sent++
			last = data
		}

		if done {
			s.close(conn, websocket.CloseNormalClosure, "complete")
			return nil
		}

		// Wait for the next poll, pinging the peer in between
	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-pingTicker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return nil
				}
			case <-pollTicker.C:
				break wait
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed.
// Subscribers have nothing to say; text frames are ignored.
func (s *Streamer) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(s.pongWait)); return nil })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.WarnContext(ctx, "unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Streamer) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (s *Streamer) close(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// checkOrigin allows requests without an Origin header, from the server host,
// or from a configured origin
func (s *Streamer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.logger.WarnContext(r.Context(), "websocket origin not allowed",
		slog.String("origin", origin),
		slog.String("host", r.Host))
	return false
}
