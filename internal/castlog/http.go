package castlog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultHTTPLimit = 50
	maxHTTPLimit     = 500
)

// Handler serves GET /casts?actor=&limit= from store as a JSON array,
// newest first.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHTTPLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHTTPLimit)
		}

		recs, err := store.Recent(r.Context(), r.URL.Query().Get("actor"), limit)
		if err != nil {
			slog.Warn("castlog: recent failed", "err", err)
			http.Error(w, "cast log unavailable", http.StatusServiceUnavailable)
			return
		}
		if recs == nil {
			recs = []Record{}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(recs); err != nil {
			slog.Debug("castlog: encode response", "err", err)
		}
	})
}
