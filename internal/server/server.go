package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	. "github.com/cricklet/chessuci/internal/helpers"
)

// Session speaks UCI over a pair of streams until quit or EOF. An
// engine.Engine is a Session.
type Session interface {
	Run(ctx context.Context, r io.Reader, w io.Writer) error
}

// Factory builds a fresh session for every websocket connection.
type Factory func(logger Logger) Session

type Server struct {
	factory   Factory
	logger    Logger
	upgrader  websocket.Upgrader
	router    *mux.Router
	staticDir string
	sessions  atomic.Int64
}

type Option func(*Server)

// WithStatic serves dir under /static, eg. a browser GUI.
func WithStatic(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithOriginCheck replaces the default same-origin check of the upgrader.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

func New(factory Factory, logger Logger, opts ...Option) *Server {
	s := &Server{factory: factory, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = &DefaultLogger
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.ws)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.staticDir != "" {
		s.router.PathPrefix("/static").Handler(
			http.StripPrefix("/static", http.FileServer(http.Dir(s.staticDir))))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.Sessions(),
	})
}

// lineWriter sends every complete line written to it as one text message.
type lineWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	pending string
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending += string(p)
	for {
		i := strings.IndexByte(l.pending, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := strings.TrimRight(l.pending[:i], "\r")
		l.pending = l.pending[i+1:]
		if err := l.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return len(p), err
		}
	}
}

func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Println("upgrade:", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	logger := PrefixLogger(fmt.Sprintf("[%v]", id[:8]), s.logger)
	logger.Println("connected", r.RemoteAddr)
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	commandsR, commandsW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := s.factory(logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := session.Run(ctx, commandsR, &lineWriter{conn: conn}); err != nil {
			logger.Println("session:", err)
		}
		// unblocks the reader below once the engine quits
		_ = commandsR.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quit"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Println("read:", err)
			}
			break
		}
		if !s.forward(commandsW, message) {
			break
		}
	}

	_ = commandsW.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		cancel()
		<-done
	}
	logger.Println("disconnected")
}

// forward writes every line of message to the session. It returns false
// once the session stopped reading.
func (s *Server) forward(w io.Writer, message []byte) bool {
	for _, line := range strings.Split(string(message), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return false
		}
	}
	return true
}
