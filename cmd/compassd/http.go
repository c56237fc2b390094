package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// ============================================================================
// HTTP Server
// ============================================================================
// One listener carries:
//   - /ws            state websocket (renderers)
//   - /api/state     GET current snapshot
//   - /api/heading   POST {"degrees": 42}
//   - /api/location  POST {"lat": 40.9, "lon": -74.3}
//   - /healthz       liveness
// ============================================================================

// newHTTPMux wires the handlers onto a fresh mux.
func newHTTPMux(ws *Server, events chan<- Event, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	if ws != nil {
		mux.HandleFunc("/ws", ws.handleStateWS)
	}
	mux.HandleFunc("/api/state", handleAPIState(events))
	mux.HandleFunc("/api/heading", handleAPIHeading(events, logger))
	mux.HandleFunc("/api/location", handleAPILocation(events, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// runHTTPServer serves handler on port and shuts it down gracefully when
// ctx is canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	listenAddr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "port", port)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleAPIState(events chan<- Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		snap, err := requestSnapshot(r.Context(), events, time.Second)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleAPIHeading(events chan<- Event, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var body struct {
			Degrees *float64 `json:"degrees"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
			return
		}
		if body.Degrees == nil {
			writeError(w, http.StatusBadRequest, "missing degrees")
			return
		}
		if math.IsNaN(*body.Degrees) || math.IsInf(*body.Degrees, 0) {
			writeError(w, http.StatusBadRequest, "degrees must be finite")
			return
		}

		postEvent(w, events, HeadingSample{Degrees: *body.Degrees, Source: sourceHTTP}, logger)
	}
}

func handleAPILocation(events chan<- Event, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var body struct {
			Latitude  *float64 `json:"lat"`
			Longitude *float64 `json:"lon"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
			return
		}
		if body.Latitude == nil || body.Longitude == nil {
			writeError(w, http.StatusBadRequest, "lat and lon are required")
			return
		}

		postEvent(w, events, LocationObserved{Latitude: *body.Latitude, Longitude: *body.Longitude, Source: sourceHTTP}, logger)
	}
}

// postEvent enqueues ev without blocking and answers 202, or 503 when the
// daemon queue is full.
func postEvent(w http.ResponseWriter, events chan<- Event, ev Event, logger *slog.Logger) {
	select {
	case events <- ev:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
	default:
		logger.Warn("HTTP event dropped: queue full", "type", eventName(ev))
		writeError(w, http.StatusServiceUnavailable, "event queue full")
	}
}
