package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/avralt/eduwallet/internal/core/handler"
	"github.com/avralt/eduwallet/internal/core/jobs"
	"github.com/avralt/eduwallet/internal/core/logger"
	middlWre "github.com/avralt/eduwallet/internal/core/middleware"
	"github.com/avralt/eduwallet/internal/core/repository/postgres"
	"github.com/avralt/eduwallet/internal/core/usecase"
	"github.com/avralt/eduwallet/pkg/config"
	"github.com/avralt/eduwallet/pkg/postgresdb"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

type Server struct {
	router     *mux.Router
	log        logger.Logger
	httpServer *http.Server
	db         *postgresdb.Database
	scheduler  *jobs.Scheduler
	addr       string
}

func NewServer(log logger.Logger) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := postgresdb.NewPostgresDB(cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(cfg.App.MigrationsPath); err != nil {
		return nil, err
	}

	walletRepo := postgres.NewPostgresWalletRepo(db.DB, log)
	productRepo := postgres.NewPostgresProductRepo(db.DB, log)
	orderRepo := postgres.NewPostgresOrderRepo(db.DB, log)
	requestRepo := postgres.NewPostgresOrderRequestRepo(db.DB, log, cfg.App.OrderPrefix)

	notifier := usecase.NewLogNotifier(log)

	walletUsecase := usecase.NewWalletUsecase(walletRepo, log)
	saga := usecase.NewPurchaseSaga(requestRepo, productRepo, walletRepo, notifier, log)
	checkout := usecase.NewCheckoutUsecase(orderRepo, productRepo, walletRepo, notifier, log, cfg.App.OrderPrefix)

	server := &Server{
		log:       log,
		router:    mux.NewRouter(),
		db:        db,
		scheduler: jobs.NewScheduler(requestRepo, notifier, log, cfg.App.PendingTTL),
		addr:      cfg.App.HTTPAddr,
	}

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.router.Use(
		middlWre.WithErrorHandler(server.log),
		middlWre.Recovery(server.log),
		middlWre.RateLimit(cfg.App.RateLimitRPS, cfg.App.RateLimitBurst),
	)

	handler.NewWalletHandler(walletUsecase, log).RegisterRoutes(server.router)
	handler.NewPurchaseHandler(saga, log).RegisterRoutes(server.router)
	handler.NewOrderHandler(checkout, log).RegisterRoutes(server.router)
	server.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	server.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return server, nil
}

// Addr возвращает адрес из конфигурации (HTTP_ADDR).
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Run() error {
	if err := s.scheduler.Start(context.Background()); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.scheduler != nil {
			s.scheduler.Stop()
		}

		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if s.db != nil {
			err := s.db.Close()
			if err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("database shutdown error: %w", err)
			}
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
