package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/registry"
	"aitrader/src/repository"
)

// ManualWaker is the subset of the trigger coordinator the HTTP surface
// needs to poke a manual analysis run.
type ManualWaker interface {
	Wake(instID string, source registry.Source, price *float64)
}

// Deps are the dependencies the HTTP handlers read from or act on. None of
// them belong to the HTTP layer itself; it only proxies to the core.
type Deps struct {
	Waker              ManualWaker
	ManualTriggerEnabled bool
	InstIDs            []string
	StrategyMessages   *repository.StrategyMessageRepository
	Positions          *repository.PositionRepository
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response body")
	}
}

// handleStrategyRun enqueues a manual wake for every tracked instrument
// and returns immediately; the actual analysis runs asynchronously.
func handleStrategyRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.ManualTriggerEnabled {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "manual trigger disabled"})
			return
		}
		for _, instID := range deps.InstIDs {
			deps.Waker.Wake(instID, registry.SourceManual, nil)
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type strategyChatResponse struct {
	Messages            []strategyMessageDTO `json:"messages"`
	ManualTriggerAllowed bool                `json:"manual_trigger_allowed"`
}

type strategyMessageDTO struct {
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

func handleStrategyChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		messages, err := deps.StrategyMessages.FindLatest(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load strategy messages"})
			return
		}

		dtos := make([]strategyMessageDTO, 0, len(messages))
		for _, m := range messages {
			dtos = append(dtos, strategyMessageDTO{Summary: m.Summary, CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")})
		}

		writeJSON(w, http.StatusOK, strategyChatResponse{
			Messages:             dtos,
			ManualTriggerAllowed: deps.ManualTriggerEnabled,
		})
	}
}

func handlePositions(deps Deps, includeHistory bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		var symbol *string
		if raw := r.URL.Query().Get("symbol"); raw != "" {
			symbol = &raw
		}

		rows, err := deps.Positions.FetchSnapshots(r.Context(), includeHistory, symbol, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load positions"})
			return
		}

		writeJSON(w, http.StatusOK, rows)
	}
}
