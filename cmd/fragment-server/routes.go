package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/Sternrassler/fragcache/pkg/metrics"
	"github.com/Sternrassler/fragcache/pkg/render"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// backend is what the routes need from the fragment store.
type backend interface {
	cache.Inspector
	Ping(ctx context.Context) error
}

func newMux(engine *render.Engine, st backend, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(st.Ping))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("GET /debug/fragments/{key}", fragmentHandler(st, logger))
	mux.HandleFunc("/", pageHandler(engine, logger))
	return mux
}

// fragmentView is the JSON form of a stored fragment.
type fragmentView struct {
	cache.Entry
	TTLSeconds float64 `json:"ttl_seconds,omitempty"`
	Size       string  `json:"size"`
}

func fragmentHandler(inspector cache.Inspector, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		e, ok, err := inspector.Inspect(r.Context(), key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Fragment inspect failed")
			http.Error(w, "store error", http.StatusBadGateway)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}

		view := fragmentView{
			Entry:      e,
			TTLSeconds: e.TTL(time.Now()).Seconds(),
			Size:       humanize.Bytes(uint64(len(e.Value))),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}
