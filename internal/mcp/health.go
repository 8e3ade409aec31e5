package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Snapshot  string `json:"snapshot"`
	Index     string `json:"index"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The assistant implements it for the snapshot it currently serves.
type HealthChecker interface {
	Health(ctx context.Context) error
	SnapshotID() string
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It checks the vector index and returns appropriate status codes.
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Create context with 3-second timeout for health check
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := checker.Health(ctx)

		response := HealthResponse{
			Snapshot:  checker.SnapshotID(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			response.Status = "unhealthy"
			response.Index = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable) // 503
			_ = json.NewEncoder(w).Encode(response)
			return
		}

		response.Status = "healthy"
		response.Index = "connected"
		w.WriteHeader(http.StatusOK) // 200
		_ = json.NewEncoder(w).Encode(response)
	}
}
