// Package socketio pushes the live event feed to dashboard observers.
package socketio

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/socket"

	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
	jwtutil "github.com/blbu/vr-therapy-server-go/internal/utils/jwt"
	"github.com/blbu/vr-therapy-server-go/pkg/broadcast"
)

const eventsRoom = socket.Room("video-events")

// Server wraps the Socket.IO server. Connected dashboards join a single
// room and receive every durably recorded watch event.
type Server struct {
	io        *socket.Server
	logger    *slog.Logger
	jwtSecret string

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates the Socket.IO server with JWT-guarded connections.
func NewServer(logger *slog.Logger, jwtSecret string) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(60 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetServeClient(false)
	opts.SetPath("/socket.io")

	s := &Server{
		io:        socket.NewServer(nil, opts),
		logger:    logger,
		jwtSecret: jwtSecret,
		stop:      make(chan struct{}),
	}

	s.io.Use(s.connectionMiddleware)
	s.io.On("connection", func(args ...any) {
		sock, ok := args[0].(*socket.Socket)
		if !ok {
			s.logger.Error("unexpected connection payload", slog.Any("payload", args))
			return
		}
		s.handleConnection(sock)
	})

	return s, nil
}

// StreamEvents forwards the event feed to connected dashboards until Close
// is called. The subscription buffer follows the bus configuration; events
// dropped under load can be re-read from the HTTP feed.
func (s *Server) StreamEvents(bus *broadcast.Bus[watch.EventView]) {
	feed, cancel := bus.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		for {
			select {
			case <-s.stop:
				return
			case view, ok := <-feed:
				if !ok {
					return
				}
				if err := s.io.To(eventsRoom).Emit("videoEvent", view); err != nil {
					s.logger.Debug("failed to emit videoEvent", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// GetHandler returns the HTTP handler for Socket.IO.
func (s *Server) GetHandler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Close stops event forwarding and shuts the Socket.IO server down.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	done := make(chan struct{})
	s.io.Close(func() {
		close(done)
	})
	<-done
	return nil
}

func (s *Server) connectionMiddleware(sock *socket.Socket, next func(*socket.ExtendedError)) {
	token := s.extractToken(sock)
	if token == "" {
		s.logger.Warn("socket connection rejected: missing token")
		next(socket.NewExtendedError("missing authentication token", map[string]any{"code": "MISSING_TOKEN"}))
		return
	}

	claims, err := jwtutil.ParseAccessToken(s.jwtSecret, token)
	if err != nil {
		s.logger.Warn("socket connection rejected: invalid token", slog.String("error", err.Error()))
		next(socket.NewExtendedError("invalid token", map[string]any{"code": "INVALID_TOKEN"}))
		return
	}

	sock.SetData(claims)
	next(nil)
}

func (s *Server) handleConnection(sock *socket.Socket) {
	claims, ok := sock.Data().(*jwtutil.Claims)
	if !ok {
		s.logger.Error("connection established without claims")
		sock.Disconnect(true)
		return
	}

	sock.Join(eventsRoom)

	s.logger.Info("dashboard connected",
		slog.String("email", claims.Email),
		slog.String("connId", string(sock.Id())),
	)

	if err := sock.Emit("connectionConfirmed", map[string]any{
		"email":     claims.Email,
		"role":      claims.Role,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn("failed to emit connection confirmation", slog.String("error", err.Error()))
	}

	sock.On("disconnect", func(args ...any) {
		s.logger.Info("dashboard disconnected", slog.String("email", claims.Email))
	})
}

func (s *Server) extractToken(sock *socket.Socket) string {
	if sock == nil {
		return ""
	}

	if conn := sock.Conn(); conn != nil {
		if ctx := conn.Request(); ctx != nil {
			if req := ctx.Request(); req != nil {
				if token := req.URL.Query().Get("token"); token != "" {
					return token
				}
			}
			if query := ctx.Query(); query != nil {
				if token, ok := query.Get("token"); ok && token != "" {
					return token
				}
			}
		}
	}

	if hs := sock.Handshake(); hs != nil {
		if hs.Query != nil {
			if token, ok := hs.Query.Get("token"); ok && token != "" {
				return token
			}
		}
		if authMap, ok := hs.Auth.(map[string]any); ok {
			if token, ok := authMap["token"].(string); ok {
				return token
			}
		}
	}

	return ""
}
