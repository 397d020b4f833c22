package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"papershort/src/engine"
	"papershort/src/repository"
)

// Deps are the collaborators the admin surface reads from. Everything is
// read-only except the manual scan trigger, which goes through the engine.
type Deps struct {
	Engine    *engine.Engine
	Equity    float64
	Signals   *repository.SignalRepository
	Trades    *repository.TradeRepository
	Alerts    *repository.AlertRepository
	Positions *repository.PositionRepository
	Summary   *repository.SummaryRepository
}

// NewRouter builds the admin surface. Split from StartServer so tests can
// mount it on httptest.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		// A client hang-up must not interrupt an in-flight cycle; the cycle
		// finishes and commits its high-water mark regardless.
		result := deps.Engine.RunCycle(context.WithoutCancel(r.Context()), engine.TriggerManual)
		status := http.StatusOK
		if !result.Executed {
			status = http.StatusConflict
		}
		writeJSON(w, status, result)
	})

	r.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
		summary, err := deps.Summary.Compute(r.Context(), deps.Equity)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/signals", func(w http.ResponseWriter, r *http.Request) {
		signals, err := deps.Signals.FindLatest(r.Context(), limitParam(r))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signals unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, signals)
	})

	r.Get("/positions", func(w http.ResponseWriter, r *http.Request) {
		positions, err := deps.Positions.FindOpen(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "positions unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, positions)
	})

	r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
		trades, err := deps.Trades.FindLatest(r.Context(), limitParam(r))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trades unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, trades)
	})

	r.Get("/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := deps.Alerts.FindLatest(r.Context(), limitParam(r))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "alerts unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	})

	return r
}

func StartServer(port string, deps Deps) {
	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(deps),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
