package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/chart"
	"qi-quai-rates/internal/engine"
	"qi-quai-rates/internal/flow"
	"qi-quai-rates/internal/market"
	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/service"
)

// Handler renders engine state over HTTP.
type Handler struct {
	engine *engine.Engine
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(eng *engine.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: eng,
		logger: logger.With().Str("component", "http_handler").Logger(),
		now:    time.Now,
	}
}

const maxConvertBody = 4 << 10

type errorJSON struct {
	Error string `json:"error"`
}

// ReadingJSON is the wire form of one reading.
type ReadingJSON struct {
	Quantity  string           `json:"quantity"`
	Label     string           `json:"label"`
	Status    string           `json:"status"`
	Value     decimal.Decimal  `json:"value"`
	Previous  *decimal.Decimal `json:"previous,omitempty"`
	ChangePct *decimal.Decimal `json:"change_pct,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
	Stale     bool             `json:"stale"`
	Derived   bool             `json:"derived"`
}

// ReadingsResponse is returned by GET /readings.
type ReadingsResponse struct {
	AssetA   string        `json:"asset_a"`
	AssetB   string        `json:"asset_b"`
	Readings []ReadingJSON `json:"readings"`
}

// SampleJSON is one history point.
type SampleJSON struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// HistoryResponse is returned by GET /history/{quantity}.
type HistoryResponse struct {
	Quantity string       `json:"quantity"`
	Range    string       `json:"range"`
	Capacity int          `json:"capacity"`
	Samples  []SampleJSON `json:"samples"`
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
	// Preview prices without recording flow.
	Preview bool `json:"preview"`
}

// ConvertResponse is the priced conversion.
type ConvertResponse struct {
	QuoteID         string          `json:"quote_id"`
	Direction       string          `json:"direction"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	AmountIn        decimal.Decimal `json:"amount_in"`
	AmountOut       decimal.Decimal `json:"amount_out"`
	EffectiveRate   decimal.Decimal `json:"effective_rate"`
	Rate            decimal.Decimal `json:"rate"`
	SlippagePercent decimal.Decimal `json:"slippage_pct"`
	Stale           bool            `json:"stale"`
	RateUpdatedAt   time.Time       `json:"rate_updated_at"`
	Preview         bool            `json:"preview"`
}

// SpreadResponse is returned by GET /spread.
type SpreadResponse struct {
	SpreadPercent decimal.Decimal `json:"spread_pct"`
}

// FlowsResponse is returned by GET /flows.
type FlowsResponse struct {
	Window  string           `json:"window"`
	AtoB    decimal.Decimal  `json:"a_to_b"`
	BtoA    decimal.Decimal  `json:"b_to_a"`
	Records []FlowRecordJSON `json:"records"`
}

// FlowRecordJSON is one recorded conversion.
type FlowRecordJSON struct {
	Timestamp time.Time       `json:"timestamp"`
	Direction string          `json:"direction"`
	Volume    decimal.Decimal `json:"volume"`
}

// GetReadings returns every tracked quantity.
func (h *Handler) GetReadings(w http.ResponseWriter, r *http.Request) {
	cache := h.engine.Cache()
	pair := cache.Pair()

	res := ReadingsResponse{AssetA: pair.A.Symbol, AssetB: pair.B.Symbol}
	for _, reading := range cache.Readings() {
		res.Readings = append(res.Readings, toReadingJSON(pair, reading))
	}
	writeJSON(w, http.StatusOK, res)
}

// GetHistory returns a quantity's samples within ?range=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q, rng, ok := h.historyParams(w, r)
	if !ok {
		return
	}

	res := HistoryResponse{
		Quantity: q.String(),
		Range:    string(rng),
		Capacity: h.engine.Cache().Buffer(q).Cap(),
		Samples:  []SampleJSON{},
	}
	for s := range h.engine.Cache().HistorySince(q, rng.Since(h.now())) {
		res.Samples = append(res.Samples, SampleJSON{Timestamp: s.Timestamp, Value: s.Value})
	}
	writeJSON(w, http.StatusOK, res)
}

// GetHistoryChart renders a quantity's samples within ?range= as PNG.
func (h *Handler) GetHistoryChart(w http.ResponseWriter, r *http.Request) {
	q, rng, ok := h.historyParams(w, r)
	if !ok {
		return
	}

	var points []chart.Point
	for s := range h.engine.Cache().HistorySince(q, rng.Since(h.now())) {
		points = append(points, chart.Point{Time: s.Timestamp, Value: s.Value})
	}
	if len(points) < 2 {
		writeError(w, http.StatusNotFound, "not enough samples to draw a chart")
		return
	}

	label := service.Label(h.engine.Cache().Pair(), q)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := chart.RenderPNG(w, chart.Options{Title: label + " (" + string(rng) + ")", YAxisName: label}, chart.Series{Name: label, Points: points}); err != nil {
		h.logger.Error().Err(err).Str("quantity", q.String()).Msg("chart render failed")
	}
}

// PostConvert prices a conversion and, unless previewing, records its flow.
func (h *Handler) PostConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxConvertBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair := h.engine.Cache().Pair()
	direction, err := pair.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := engine.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price := h.engine.Convert
	if req.Preview {
		price = h.engine.Quote
	}
	result, err := price(r.Context(), direction, amount)
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, engine.ErrNoDataAvailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("conversion failed")
		writeError(w, http.StatusInternalServerError, "conversion failed")
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{
		QuoteID:         result.QuoteID.String(),
		Direction:       direction.String(),
		From:            pair.Source(direction).Symbol,
		To:              pair.Target(direction).Symbol,
		AmountIn:        result.AmountIn,
		AmountOut:       result.AmountOut,
		EffectiveRate:   result.EffectiveRate,
		Rate:            result.Rate,
		SlippagePercent: result.SlippagePercent,
		Stale:           result.Stale,
		RateUpdatedAt:   result.RateUpdatedAt,
		Preview:         req.Preview,
	})
}

// GetSpread reports the round-trip spread between both directions.
func (h *Handler) GetSpread(w http.ResponseWriter, r *http.Request) {
	spread, err := h.engine.Spread()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SpreadResponse{SpreadPercent: spread})
}

// GetFlows reports flow totals over ?window= (default the pricing window).
func (h *Handler) GetFlows(w http.ResponseWriter, r *http.Request) {
	window := h.engine.Window()
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = min(parsed, flow.Retention)
	}

	flows := h.engine.Flows()
	totals := flows.WindowedTotals(window)
	res := FlowsResponse{Window: window.String(), AtoB: totals.AtoB, BtoA: totals.BtoA, Records: []FlowRecordJSON{}}
	from := h.now().Add(-window)
	for _, rec := range flows.Snapshot() {
		if rec.Timestamp.Before(from) {
			continue
		}
		res.Records = append(res.Records, FlowRecordJSON{Timestamp: rec.Timestamp, Direction: rec.Direction.String(), Volume: rec.Volume})
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) historyParams(w http.ResponseWriter, r *http.Request) (ratecache.Quantity, chart.Range, bool) {
	q, err := ratecache.ParseQuantity(chi.URLParam(r, "quantity"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return 0, "", false
	}
	rng, err := chart.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, "", false
	}
	return q, rng, true
}

func toReadingJSON(pair market.Pair, r ratecache.Reading) ReadingJSON {
	out := ReadingJSON{
		Quantity: r.Quantity.String(),
		Label:    service.Label(pair, r.Quantity),
		Status:   r.Status.String(),
		Value:    r.Value,
		Stale:    r.IsStale(),
		Derived:  r.Quantity.Derived(),
	}
	if !r.Available() {
		return out
	}
	updated := r.UpdatedAt.UTC()
	out.UpdatedAt = &updated
	if !r.Previous.IsZero() {
		prev := r.Previous
		change := r.Value.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
		out.Previous = &prev
		out.ChangePct = &change
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}
