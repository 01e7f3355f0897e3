// Package app assembles the authserver HTTP process: storage, the profile
// service connection, the account flows and the web handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/authserver/internal/flow"
	"github.com/louisbranch/authserver/internal/oidc"
	platformgrpc "github.com/louisbranch/authserver/internal/platform/grpc"
	"github.com/louisbranch/authserver/internal/profile/profilegrpc"
	"github.com/louisbranch/authserver/internal/storage/sqlite"
	"github.com/louisbranch/authserver/internal/web"
)

const (
	pendingAuthorizationTTL = 15 * time.Minute
	purgeInterval           = 5 * time.Minute
	profileDialHealthWait   = 30 * time.Second
)

// Config carries everything the server needs to start.
type Config struct {
	HTTPAddr       string
	DBPath         string
	ProfileAddr    string
	ClientRegistry []byte
	Logger         *log.Logger
}

// Server hosts the authserver HTTP process.
type Server struct {
	listener     net.Listener
	httpServer   *http.Server
	store        *sqlite.Store
	interactions *oidc.Store
	logger       *log.Logger
}

// New opens the store, dials the profile service and wires the handler.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	registry, err := oidc.ParseClientRegistry(cfg.ClientRegistry)
	if err != nil {
		store.Close()
		return nil, err
	}
	interactions := oidc.NewStore(store.DB(), registry, pendingAuthorizationTTL)

	conn, err := platformgrpc.DialWithHealth(ctx, cfg.ProfileAddr, profileDialHealthWait, logger.Printf,
		platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("dial profile service: %w", err)
	}
	profiles := profilegrpc.New(conn)

	flows := flow.New(store, store, profiles, interactions, logger)
	handler := web.New(flows, store, store, logger)

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		conn.Close()
		store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	return &Server{
		listener:     listener,
		httpServer:   &http.Server{Handler: handler.Routes()},
		store:        store,
		interactions: interactions,
		logger:       logger,
	}, nil
}

// Addr returns the bound HTTP address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the context ends or the server fails.
func (s *Server) Serve(ctx context.Context) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.store.Close()

	go s.purgeLoop(serveCtx)

	s.logger.Printf("authserver listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// purgeLoop drops expired pending authorizations on an interval.
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.interactions.PurgeExpired(ctx)
			if err != nil {
				s.logger.Printf("ERROR purge pending authorizations: %v", err)
				continue
			}
			if n > 0 {
				s.logger.Printf("purged %d expired pending authorizations", n)
			}
		}
	}
}
