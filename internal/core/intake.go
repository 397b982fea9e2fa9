package core

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/router"
	"github.com/moderndownloader/bridge/internal/transport"
	"github.com/moderndownloader/bridge/internal/utils"
)

// maxIntentBody bounds POST /intent bodies.
const maxIntentBody = 64 << 10

// IntakeConfig configures the loopback intake server.
type IntakeConfig struct {
	Service BridgeService
	// Token, when set, is required as a Bearer token on everything except
	// /health and /metrics.
	Token    string
	Gatherer prometheus.Gatherer
	Port     int
}

// NewIntakeHandler builds the intake mux. Page-side producers post
// intents here; the CLI and status surfaces read state from it.
func NewIntakeHandler(cfg IntakeConfig) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"port":   cfg.Port,
		})
	})

	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	auth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.Token, h)
	}

	mux.Handle("/intent", auth(func(w http.ResponseWriter, r *http.Request) {
		handleIntent(w, r, cfg.Service)
	}))

	mux.Handle("/recent", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		items, err := cfg.Service.Recent(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []types.DownloadItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}))

	mux.Handle("/status", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, err := cfg.Service.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}))

	mux.Handle("/events", auth(func(w http.ResponseWriter, r *http.Request) {
		handleEvents(w, r, cfg.Service)
	}))

	return corsMiddleware(mux)
}

// ServeIntake serves the intake on ln until ctx is done.
func ServeIntake(ctx context.Context, ln net.Listener, cfg IntakeConfig) error {
	srv := &http.Server{
		Handler:           NewIntakeHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func handleIntent(w http.ResponseWriter, r *http.Request, svc BridgeService) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var intent types.DownloadIntent
	body := io.LimitReader(r.Body, maxIntentBody)
	if err := json.NewDecoder(body).Decode(&intent); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(intent.MediaURL) == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}
	if intent.UserAgent == "" && router.IsBrowserUserAgent(r.Header) {
		intent.UserAgent = r.UserAgent()
	}

	id, err := svc.SendIntent(r.Context(), intent)
	switch {
	case errors.Is(err, transport.ErrNotConnected):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		utils.Debug("Intake: intent %s failed: %v", id, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "sent"})
}

func handleEvents(w http.ResponseWriter, r *http.Request, svc BridgeService) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	stream, cleanup, err := svc.StreamEvents(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-stream:
			if !ok {
				return
			}
			name := StreamEventName(msg)
			if name == "" {
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
