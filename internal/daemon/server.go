package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/httpapi"
	"github.com/matheus3301/wpprelay/internal/instance"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC control server lifecycle for an instance daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the instance's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.Service) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = instance.SocketPath(p.InstanceName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.RegisterRelayServer(srv, svc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// HTTPServer serves the webhook, query and websocket endpoints.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the configured address so a busy port fails startup.
func NewHTTPServer(p Params, handler *httpapi.Server, logger *zap.Logger) (*HTTPServer, error) {
	listener, err := net.Listen("tcp", p.Config.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen http: %w", err)
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (h *HTTPServer) Addr() string {
	return h.listener.Addr().String()
}

// Start serves until Stop. Blocks.
func (h *HTTPServer) Start() error {
	h.logger.Info("HTTP server starting", zap.String("addr", h.Addr()))
	if err := h.srv.Serve(h.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (h *HTTPServer) Stop(ctx context.Context) {
	h.logger.Info("HTTP server stopping")
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("HTTP shutdown", zap.Error(err))
		_ = h.srv.Close()
	}
}
