// internal/api/api.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/common/middleware"
	"github.com/YaganovValera/tradeflow/internal/aggregator"
	"github.com/YaganovValera/tradeflow/internal/model"
	"github.com/YaganovValera/tradeflow/internal/transport/hyperliquid"
)

var tracer = otel.Tracer("tradeflow/api")

const (
	// DefaultTradesLimit — сколько сделок отдаёт /trades без limit.
	DefaultTradesLimit = 9
	// MaxTradesLimit — верхняя граница limit.
	MaxTradesLimit = 500
)

// Querier — чтение агрегатов.
type Querier interface {
	Snapshot(filter aggregator.Filter) aggregator.Snapshot
	SnapshotCoin(coin string) aggregator.Snapshot
	Recent(coin string, limit int) []model.Trade
	LastPrice(coin string) (float64, bool)
}

// StatusSource — последнее состояние соединения с биржей.
type StatusSource interface {
	State() hyperliquid.State
}

// Handler — HTTP API запросов к агрегатору.
type Handler struct {
	q      Querier
	status StatusSource
	coins  map[string]struct{}
	order  []string
	log    *logger.Logger
}

// New создаёт Handler. coins — монеты, по которым разрешены запросы.
func New(q Querier, status StatusSource, coins []string, log *logger.Logger) *Handler {
	h := &Handler{
		q:      q,
		status: status,
		coins:  make(map[string]struct{}, len(coins)),
		order:  append([]string(nil), coins...),
		log:    log.Named("api"),
	}
	for _, c := range coins {
		h.coins[c] = struct{}{}
	}
	return h
}

// Routes возвращает chi-роутер с маршрутами /api/v1/*.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Metrics())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", h.snapshot)
		r.Get("/trades", h.trades)
		r.Get("/status", h.statusInfo)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type tradesResponse struct {
	Coin      string        `json:"coin"`
	LastPrice *float64      `json:"last_price,omitempty"`
	Trades    []model.Trade `json:"trades"`
}

type statusResponse struct {
	State     hyperliquid.State `json:"state"`
	Connected bool              `json:"connected"`
	Coins     []string          `json:"coins"`
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "API.Snapshot")
	defer span.End()

	coin := r.URL.Query().Get("coin")
	if coin == "" {
		h.writeJSON(w, r, http.StatusOK, h.q.Snapshot(nil))
		return
	}
	if !h.known(coin) {
		h.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown coin " + strconv.Quote(coin)})
		return
	}
	span.SetAttributes(attribute.String("coin", coin))
	h.writeJSON(w, r, http.StatusOK, h.q.SnapshotCoin(coin))
}

func (h *Handler) trades(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "API.Trades")
	defer span.End()

	query := r.URL.Query()
	coin := query.Get("coin")
	if coin == "" {
		h.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "coin is required"})
		return
	}
	if !h.known(coin) {
		h.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown coin " + strconv.Quote(coin)})
		return
	}

	limit := DefaultTradesLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxTradesLimit {
			h.writeJSON(w, r, http.StatusBadRequest, errorResponse{
				Error: "limit must be an integer in [1, " + strconv.Itoa(MaxTradesLimit) + "]",
			})
			return
		}
		limit = n
	}
	span.SetAttributes(attribute.String("coin", coin), attribute.Int("limit", limit))

	resp := tradesResponse{Coin: coin, Trades: h.q.Recent(coin, limit)}
	if resp.Trades == nil {
		resp.Trades = []model.Trade{}
	}
	if px, ok := h.q.LastPrice(coin); ok {
		resp.LastPrice = &px
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) statusInfo(w http.ResponseWriter, r *http.Request) {
	st := h.status.State()
	h.writeJSON(w, r, http.StatusOK, statusResponse{
		State:     st,
		Connected: st == hyperliquid.StateConnected,
		Coins:     h.order,
	})
}

func (h *Handler) known(coin string) bool {
	_, ok := h.coins[coin]
	return ok
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithContext(r.Context()).Warn("api: write response failed", zap.Error(err))
	}
}
