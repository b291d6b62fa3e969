package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/disgoorg/json"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxLeaderboardLimit = 100

type Pinger interface {
	Ping(ctx context.Context) error
}

type LeaderboardSource interface {
	Leaderboard(ctx context.Context, n int) ([]karma.Account, error)
}

type OrderFinder interface {
	Find(ctx context.Context, id string) (*orders.Order, error)
}

type NameResolver interface {
	Name(ctx context.Context, userID string) string
}

// Deps are the collaborators the read-only API serves from.
type Deps struct {
	DB      Pinger
	Ledger  LeaderboardSource
	Orders  OrderFinder
	Names   NameResolver
	Metrics http.Handler
}

type handlers struct {
	deps Deps
}

// NewRouter builds the HTTP router exposing health, metrics and read-only
// order and leaderboard lookups.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(NewRateLimiter(apiRateLimit, apiRateWindow).Middleware)
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/orders/{id}", h.order)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		switch {
		case ww.Status() >= 500:
			level = slog.LevelError
		case ww.Status() >= 400:
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "HTTP request",
			slog.String("type", "http"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type leaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Balance int64  `json:"balance"`
	Title   string `json:"title"`
}

type orderResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	RequesterID      string     `json:"requester_id"`
	RecipientID      string     `json:"recipient_id"`
	RunnerID         string     `json:"runner_id,omitempty"`
	Drink            string     `json:"drink"`
	Category         string     `json:"category"`
	Location         string     `json:"location"`
	Notes            string     `json:"notes,omitempty"`
	KarmaCost        int64      `json:"karma_cost"`
	BonusMultiplier  int64      `json:"bonus_multiplier,omitempty"`
	RemainingMinutes int        `json:"remaining_minutes,omitempty"`
	InitiatedBy      string     `json:"initiated_by"`
	CreatedAt        time.Time  `json:"created_at"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.deps.DB.Ping(ctx); err != nil {
		slog.Warn("Health check failed",
			slog.String("type", "http"),
			slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := config.LeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	board, err := h.deps.Ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to load leaderboard",
			slog.String("type", "error"),
			slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "leaderboard unavailable"})
		return
	}

	entries := make([]leaderboardEntry, len(board))
	for i, acc := range board {
		entries[i] = leaderboardEntry{
			Rank:    i + 1,
			UserID:  acc.UserID,
			Balance: acc.Balance,
			Title:   acc.Title,
		}
		if h.deps.Names != nil {
			entries[i].Name = h.deps.Names.Name(r.Context(), acc.UserID)
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) order(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.deps.Orders.Find(r.Context(), id)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	case err != nil:
		slog.Error("Failed to load order",
			slog.String("type", "error"),
			slog.String("order_id", id),
			slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "order unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func toOrderResponse(o orders.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Status:          string(o.Status),
		RequesterID:     o.RequesterID,
		RecipientID:     o.RecipientID,
		RunnerID:        o.RunnerID,
		Drink:           o.Drink,
		Category:        string(o.Category),
		Location:        o.Location,
		Notes:           o.Notes,
		KarmaCost:       o.KarmaCost,
		BonusMultiplier: o.BonusMultiplier,
		InitiatedBy:     string(o.InitiatedBy),
		CreatedAt:       o.CreatedAt,
	}
	if o.Status == orders.StatusPending {
		resp.RemainingMinutes = o.RemainingMinutes
	}
	if !o.ClaimedAt.IsZero() {
		resp.ClaimedAt = &o.ClaimedAt
	}
	if !o.DeliveredAt.IsZero() {
		resp.DeliveredAt = &o.DeliveredAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response",
			slog.String("type", "http"),
			slog.Any("error", err))
	}
}
