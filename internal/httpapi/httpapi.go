// Package httpapi is the optional local HTTP surface of the controller.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/controller"
	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/state"
)

var logger = logging.New("httpapi")

const maxCommandBytes = 4096

type Source interface {
	Phase() controller.Phase
	Diagnostics() controller.Diagnostics
	Lighting() state.Lighting
	Enqueue(raw []byte) bool
}

func NewRouter(src Source) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		phase := src.Phase()
		status := http.StatusOK
		if phase != controller.Running {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"phase": phase.String()})
	})

	r.Get("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Diagnostics())
	})

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.Lighting())
	})

	// POST /command takes the same payloads as the command topic. It is
	// queued like any other message, so the response only confirms receipt.
	r.Post("/command", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if len(body) > maxCommandBytes {
			http.Error(w, "command too large", http.StatusRequestEntityTooLarge)
			return
		}
		if strings.TrimSpace(string(body)) == "" {
			http.Error(w, "empty command", http.StatusBadRequest)
			return
		}
		if !src.Enqueue(body) {
			http.Error(w, "command inbox full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.With(zap.Error(err)).Warn("Failed to write response")
	}
}

// Serve runs the HTTP surface on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.With(zap.String("addr", addr)).Info("HTTP API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve http on %s", addr)
	}
	return nil
}
