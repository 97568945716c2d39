package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// startHealthServer exposes the liveness endpoint hosting platforms probe.
func startHealthServer(port string) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   "adminbot",
			"version":   "2.0.0",
		})
	}
	r.Get("/", health)
	r.Get("/health", health)

	log.Printf("health server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Printf("health server: %v", err)
	}
}

// keepAlive pings our own public URL so free-tier hosts don't idle the
// process out. Interval stays under the usual 15 minute cutoff.
func keepAlive(ctx context.Context, baseURL string) {
	client := &http.Client{Timeout: 30 * time.Second}
	ticker := time.NewTicker(14 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
			if err != nil {
				log.Printf("keep-alive request: %v", err)
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				log.Printf("keep-alive ping failed: %v", err)
				continue
			}
			resp.Body.Close()
			log.Printf("keep-alive ping: %s", resp.Status)
		}
	}
}
