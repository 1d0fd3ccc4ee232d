// echoserver is a local WebSocket test server implementing the
// resumable ACK/CONTINUE protocol that resend.BufferedResendConnection
// expects, for exercising robustws-demo without a real backend.
// Usage: go run ./cmd/echoserver --addr :8080
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var wirePattern = regexp.MustCompile(`^([0-9A-Fa-f]+)\|(.*)$`)

// session tracks one robust ID's resumable state across physical
// reconnects, so a CONTINUE handshake can tell the client where to
// resume from.
type session struct {
	mu     sync.Mutex
	nextID uint64
}

type server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

func newServer(logger *slog.Logger) *server {
	return &server{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sessions: make(map[string]*session),
	}
}

func (s *server) sessionFor(robustID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[robustID]
	if !ok {
		sess = &session{}
		s.sessions[robustID] = sess
	}
	return sess
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	robustID := r.URL.Query().Get("n")
	resume := false
	if robustID == "" {
		robustID = r.URL.Query().Get("o")
		resume = true
	}
	if robustID == "" {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1008, "missing robust id"), time.Now().Add(time.Second))
		return
	}

	log := s.logger.With("robust_id", robustID, "resume", resume)
	sess := s.sessionFor(robustID)

	if resume {
		sess.mu.Lock()
		next := sess.nextID
		sess.mu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("CONTINUE %X", next))); err != nil {
			log.Warn("failed to send CONTINUE", "error", err)
			return
		}
	}

	log.Info("client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("client disconnected", "error", err)
			return
		}

		m := wirePattern.FindStringSubmatch(string(data))
		if m == nil {
			log.Warn("malformed frame, ignoring", "frame", string(data))
			continue
		}

		id, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			log.Warn("bad frame id, ignoring", "frame", string(data))
			continue
		}

		log.Info("received", "id", id, "payload", m[2])

		sess.mu.Lock()
		if id >= sess.nextID {
			sess.nextID = id + 1
		}
		next := sess.nextID
		sess.mu.Unlock()

		ack := fmt.Sprintf("ACK %X", next)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			log.Warn("failed to send ACK", "error", err)
			return
		}
	}
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := newServer(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	logger.Info("echoserver listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
