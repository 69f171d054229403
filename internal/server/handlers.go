package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"options-analytics/internal/engine"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
	"options-analytics/internal/models"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByKind = map[string]int{
	"invalid_input":           http.StatusBadRequest,
	"already_expired":         http.StatusUnprocessableEntity,
	"underspecified_strategy": http.StatusUnprocessableEntity,
	"convergence_failure":     http.StatusUnprocessableEntity,
	"market_data_unavailable": http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
		logger := logging.FromContext(r.Context(), s.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("body", "", err.Error())
	}
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, s, "expected YYYY-MM-DD")
	}
	return t, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewValidationError(name, raw, "must be a number")
	}
	return &v, nil
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var req engine.OptionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.engine.Price(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"price": price})
}

func (s *Server) handleGreeks(w http.ResponseWriter, r *http.Request) {
	var req engine.OptionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.engine.Greeks(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleImpliedVolatility(w http.ResponseWriter, r *http.Request) {
	var req engine.IVRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.ImpliedVolatility(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/chain/{symbol}?spot=&expiration=&volatility=&risk_free_rate=
func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	req := engine.ChainRequest{Symbol: chi.URLParam(r, "symbol")}

	var err error
	if req.Spot, err = queryFloat(r, "spot"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Volatility, err = queryFloat(r, "volatility"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Rate, err = queryFloat(r, "risk_free_rate"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Expiration, err = parseDate("expiration", r.URL.Query().Get("expiration")); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.engine.Chain(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type templateLeg struct {
	Instrument models.Instrument `json:"instrument"`
	Type       models.OptionType `json:"option_type,omitempty"`
	Side       models.Side       `json:"side"`
	Ratio      int               `json:"ratio"`
	Offset     int               `json:"strike_offset"`
}

type templateResponse struct {
	Type        models.StrategyType `json:"strategy_type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Outlook     string              `json:"outlook"`
	Legs        []templateLeg       `json:"legs"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.engine.Templates()
	resp := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		tr := templateResponse{Type: t.Type, Name: t.Name, Description: t.Description, Outlook: t.Outlook}
		for _, l := range t.Legs {
			instrument := l.Instrument
			if instrument == "" {
				instrument = models.InstrumentOption
			}
			tr.Legs = append(tr.Legs, templateLeg{Instrument: instrument, Type: l.Type, Side: l.Side, Ratio: l.Ratio, Offset: l.Offset})
		}
		resp = append(resp, tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

type legRequest struct {
	Instrument models.Instrument `json:"instrument,omitempty"`
	Type       models.OptionType `json:"option_type,omitempty"`
	Side       models.Side       `json:"side"`
	Strike     float64           `json:"strike,omitempty"`
	Expiration string            `json:"expiration,omitempty"`
	Quantity   int               `json:"quantity"`
	Premium    float64           `json:"premium"`
}

type strategyRequest struct {
	Name   string              `json:"name,omitempty"`
	Type   models.StrategyType `json:"strategy_type"`
	Symbol string              `json:"symbol"`
	Spot   *float64            `json:"spot,omitempty"`
	Legs   []legRequest        `json:"legs"`
	engine.Assumptions
}

// parseStrategyType accepts the same spellings as the CLI. An empty type is
// left empty when optional.
func parseStrategyType(raw models.StrategyType, optional bool) (models.StrategyType, error) {
	if optional && strings.TrimSpace(string(raw)) == "" {
		return "", nil
	}
	t, err := models.ParseStrategyType(string(raw))
	if err != nil {
		return "", apperrors.NewValidationError("strategy_type", raw, "unknown strategy type")
	}
	return t, nil
}

func (req strategyRequest) toEngine() (engine.StrategyRequest, error) {
	typ, err := parseStrategyType(req.Type, true)
	if err != nil {
		return engine.StrategyRequest{}, err
	}
	out := engine.StrategyRequest{
		Name:        req.Name,
		Type:        typ,
		Symbol:      req.Symbol,
		Spot:        req.Spot,
		Assumptions: req.Assumptions,
	}
	for i, l := range req.Legs {
		exp, err := parseDate("legs["+strconv.Itoa(i)+"].expiration", l.Expiration)
		if err != nil {
			return out, err
		}
		out.Legs = append(out.Legs, models.Leg{
			Instrument: l.Instrument,
			Type:       l.Type,
			Side:       l.Side,
			Strike:     l.Strike,
			Expiration: exp,
			Quantity:   l.Quantity,
			Premium:    l.Premium,
		})
	}
	return out, nil
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var body strategyRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.toEngine()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.engine.Strategy(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type buildRequest struct {
	Type       models.StrategyType `json:"strategy_type"`
	Symbol     string              `json:"symbol"`
	Spot       *float64            `json:"spot,omitempty"`
	Width      float64             `json:"width,omitempty"`
	Quantity   int                 `json:"quantity,omitempty"`
	Expiration string              `json:"expiration,omitempty"`
	engine.Assumptions
}

func (s *Server) handleBuildStrategy(w http.ResponseWriter, r *http.Request) {
	var body buildRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	typ, err := parseStrategyType(body.Type, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	exp, err := parseDate("expiration", body.Expiration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.engine.BuildStrategy(r.Context(), engine.BuildRequest{
		Type:        typ,
		Symbol:      body.Symbol,
		Spot:        body.Spot,
		Width:       body.Width,
		Quantity:    body.Quantity,
		Expiration:  exp,
		Assumptions: body.Assumptions,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
