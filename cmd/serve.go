package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/model"
)

var servePort int

// statsService is the part of market.Service the HTTP surface uses.
type statsService interface {
	GetMarketStats(ctx context.Context, q model.MarketQuery) (*model.MarketStats, error)
	Invalidate(q model.MarketQuery) error
	Cache() *cache.Store
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve market statistics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initService(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env.Service, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter mounts the health, market and cache routes.
func buildRouter(svc statsService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/market", func(w http.ResponseWriter, req *http.Request) {
		q, err := parseMarketQuery(req)
		if err != nil {
			writeError(w, err)
			return
		}
		stats, err := svc.GetMarketStats(req.Context(), q)
		if err != nil {
			zap.L().Warn("market request failed",
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err),
			)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Delete("/market", func(w http.ResponseWriter, req *http.Request) {
		q, err := parseMarketQuery(req)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := svc.Invalidate(q); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/cache/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Cache().Stats())
	})

	r.Delete("/cache", func(w http.ResponseWriter, _ *http.Request) {
		svc.Cache().Clear()
		zap.L().Info("cache cleared")
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// parseMarketQuery reads lat, lon, radius, year and geography from the query
// string. Radius defaults to 10 miles and geography to zip.
func parseMarketQuery(req *http.Request) (model.MarketQuery, error) {
	v := req.URL.Query()
	q := model.MarketQuery{
		RadiusMiles: 10,
		Year:        v.Get("year"),
		Geography:   model.Geography(v.Get("geography")),
	}

	var err error
	if q.Center.Lat, err = parseFloatParam(v.Get("lat"), "lat"); err != nil {
		return q, err
	}
	if q.Center.Lon, err = parseFloatParam(v.Get("lon"), "lon"); err != nil {
		return q, err
	}
	if raw := v.Get("radius"); raw != "" {
		if q.RadiusMiles, err = parseFloatParam(raw, "radius"); err != nil {
			return q, err
		}
	}
	if q.Year == "" {
		return q, eris.Wrap(model.ErrInvalidInput, "year is required")
	}
	return q, nil
}

func parseFloatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, eris.Wrapf(model.ErrInvalidInput, "%s is required", name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrInvalidInput, "%s %q is not a number", name, raw)
	}
	return f, nil
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
