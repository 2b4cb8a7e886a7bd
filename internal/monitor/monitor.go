// Package monitor exposes a worker's turn events over a Unix socket.
//
// Each worker creates one socket under the run directory, named after its
// conversation ID, with restrictive filesystem permissions. The CLI attaches
// with a WebSocket over that socket and tails events as the conversation
// progresses. The stream is observe-only: nothing read from a client is
// interpreted, and a slow client is dropped rather than allowed to stall
// the conversation.
package monitor

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	bridgeerrors "github.com/voxbridge/host/internal/errors"
	"github.com/voxbridge/host/internal/session"
)

const writeTimeout = 5 * time.Second

// SocketPath returns the event socket location for a conversation.
func SocketPath(runDir, conversationID string) string {
	return filepath.Join(runDir, conversationID+".sock")
}

// Server hosts the event stream for one conversation.
type Server struct {
	path     string
	logger   *log.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewServer creates an event server for the given socket path.
// If logger is nil, logs are discarded.
func NewServer(path string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		path:    path,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Start begins listening on the socket. It removes a stale socket file
// first; the conversation ID in the name makes collisions with a live
// worker effectively impossible.
func (s *Server) Start() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return bridgeerrors.MonitorSocketFailed(err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return bridgeerrors.MonitorSocketFailed(err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return bridgeerrors.MonitorSocketFailed(err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		listener.Close()
		_ = os.Remove(s.path)
		return bridgeerrors.MonitorSocketFailed(err)
	}

	s.listener = listener
	s.server = &http.Server{Handler: http.HandlerFunc(s.handleAttach)}

	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("monitor: event server stopped: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the server, disconnects clients, and removes the socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
		conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	var stopErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		stopErr = s.server.Shutdown(ctx)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// handleAttach upgrades an attaching client and registers it for events.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("monitor: attach upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	// Reader goroutine: the stream is one-way, so reads only serve to
	// detect the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.clients, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// Publish sends an event to every attached client. Implements
// session.Publisher. Clients that cannot keep up are dropped; the
// conversation never waits on an observer.
func (s *Server) Publish(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Printf("monitor: dropping client: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// Dial attaches to a worker's event socket and returns the WebSocket
// connection to read events from.
func Dial(path string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return net.Dial("unix", path)
		},
		HandshakeTimeout: writeTimeout,
	}
	// The URL host is a placeholder; the NetDial above ignores it.
	conn, _, err := dialer.Dial("ws://voxbridge/events", nil)
	return conn, err
}
