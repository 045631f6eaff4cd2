package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/openfiscal/budgetflow/internal/services"
)

var (
	statusInstance *services.StatusFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleProviderStatus", handleProviderStatus)
}

func main() {}

// handleProviderStatus reports rate-limit usage and circuit state for the
// summarization providers. ?checkConnections=true also issues one live call
// per provider, which spends real quota.
func handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var summarizer *services.SummarizerFunction
		summarizer, initErr = services.NewSummarizer(context.Background())
		if initErr == nil {
			statusInstance = services.NewStatus(summarizer)
		}
	})
	if initErr != nil {
		slog.Error("Critical: Status initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	checkConnections := r.URL.Query().Get("checkConnections") == "true"
	report := statusInstance.Report(r.Context(), checkConnections)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.Error("Failed to write response", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
