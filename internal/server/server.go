// Package server exposes the booking intake API and the telephony webhooks
// over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.uber.org/zap"
)

// Bookings is the slice of the booking store the intake routes use.
type Bookings interface {
	Create(ctx context.Context, opts booking.CreateOpts) (*models.BookingRequest, error)
	Get(ctx context.Context, id, ownerID string) (*models.BookingRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.BookingRequest, error)
}

// Calls is what the call and webhook routes drive.
type Calls interface {
	Initiate(ctx context.Context, requestID string) (*models.BookingRequest, error)
	HandleTurn(ctx context.Context, ev telephony.TurnEvent) (string, error)
	HandleStatus(ctx context.Context, ev telephony.StatusEvent) error
}

// Opts holds the dependencies and settings of the HTTP surface.
type Opts struct {
	Bookings Bookings
	Calls    Calls
	Logger   *zap.Logger

	// RequestsPerMinute limits each client IP on the /api routes. Webhooks
	// are not limited. Zero disables limiting.
	RequestsPerMinute int

	// When AuthToken is set, webhook requests must carry a valid signature
	// computed over PublicBaseURL plus the request path.
	AuthToken     string
	PublicBaseURL string
}

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Bookings == nil {
		return nil, fmt.Errorf("server: booking store is required")
	}
	if opts.Calls == nil {
		return nil, fmt.Errorf("server: call orchestrator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), accessLog(opts.Logger))
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.Opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "dialbook listening on :%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
