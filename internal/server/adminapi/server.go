// Package adminapi exposes AdminService over HTTP for operators. Every route
// under /admin requires "Authorization: Bearer <admin token>".
package adminapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/server/rpc"
	"github.com/dmitrijs2005/linkledger/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RelayLister reports the relays the server currently hears from.
type RelayLister interface {
	List() []rpc.RelayInfo
}

type Server struct {
	address string
	admin   *services.AdminService
	relays  RelayLister
	logger  logging.Logger
	srv     *http.Server
}

func NewServer(address string, admin *services.AdminService, relays RelayLister, l logging.Logger) *Server {
	s := &Server{
		address: address,
		admin:   admin,
		relays:  relays,
		logger:  l.With("module", "admin_api"),
	}
	s.srv = &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Get("/livez", s.handleLiveness)

	mux.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/accounts", s.handleList)
		r.Post("/accounts", s.handleCreate)
		r.Delete("/accounts/{name}", s.handleDelete)
		r.Put("/accounts/{name}/balance", s.handleSetBalance)
		r.Post("/accounts/{name}/lock", s.handleLock)
		r.Post("/accounts/{name}/unlock", s.handleUnlock)
		r.Post("/accounts/{name}/credential", s.handleResetCredential)
		r.Get("/relays", s.handleRelays)
	})

	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping admin API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting admin API", "address", listen.Addr().String())

	if err := s.srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
