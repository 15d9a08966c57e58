package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/vjeantet/jodaTime"

	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/scan"
	"github.com/sandrolain/gondola/pkg/types"
	"github.com/sandrolain/gondola/pkg/wire"
)

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Formula   string              `json:"formula" binding:"required"`
	Variables []wire.VariableDecl `json:"variables"`
}

// CheckResponse is the answer of POST /v1/check.
type CheckResponse struct {
	Type       string `json:"type"`
	Simplified string `json:"simplified"`
}

// EvalRequest is the body of POST /v1/eval. Without Day or Date the last
// trading day is used; a negative Day counts from the end.
type EvalRequest struct {
	Formula   string              `json:"formula" binding:"required"`
	Variables []wire.VariableDecl `json:"variables"`
	Symbol    string              `json:"symbol" binding:"required"`
	Day       *int                `json:"day"`
	Date      string              `json:"date"`
}

// EvalResponse is the answer of POST /v1/eval.
type EvalResponse struct {
	Symbol    string             `json:"symbol"`
	Day       int                `json:"day"`
	Type      string             `json:"type"`
	Value     float64            `json:"value"`
	Truth     bool               `json:"truth"`
	Variables map[string]float64 `json:"variables,omitempty"`
}

// ScanRequest is the body of POST /v1/scan.
type ScanRequest struct {
	Formula     string              `json:"formula" binding:"required"`
	Variables   []wire.VariableDecl `json:"variables"`
	Symbols     []string            `json:"symbols"`
	From        int                 `json:"from"`
	To          int                 `json:"to"`
	Last        int                 `json:"last"`
	MatchesOnly bool                `json:"matches_only"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Line     int    `json:"line,omitempty"`
	Position int    `json:"position,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Day      *int   `json:"day,omitempty"`
}

// daySource is implemented by sources that map dates to trading days.
type daySource interface {
	DayOf(symbol types.Symbol, t time.Time) (int, bool)
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.opts.Cache != nil {
		resp["cache"] = s.opts.Cache.Stats()
	}
	if l, ok := s.quotes.(scan.Lister); ok {
		resp["symbols"] = len(l.Symbols())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	vars, err := wire.Variables(req.Variables)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	expr, err := s.compile(req.Formula, vars)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckResponse{
		Type:       expr.Type().String(),
		Simplified: expr.Root().String(),
	})
}

func (s *Server) eval(c *gin.Context) {
	var req EvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	vars, err := wire.Variables(req.Variables)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	expr, err := s.compile(req.Formula, vars)
	if err != nil {
		s.fail(c, err)
		return
	}

	symbol := types.Symbol(req.Symbol)
	day, err := s.resolveDay(symbol, req)
	if err != nil {
		s.fail(c, err)
		return
	}

	v, err := s.ev.Eval(c.Request.Context(), expr, evaluator.Env{
		Variables: vars,
		Quotes:    s.quotes,
		Symbol:    symbol,
		Day:       day,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := EvalResponse{
		Symbol: req.Symbol,
		Day:    day,
		Type:   expr.Type().String(),
		Value:  v,
		Truth:  types.IsTrue(v),
	}
	if vars.Len() > 0 {
		resp.Variables = make(map[string]float64, vars.Len())
		for _, name := range vars.Names() {
			resp.Variables[name], _ = vars.Value(name)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// resolveDay picks the evaluation day of req.
func (s *Server) resolveDay(symbol types.Symbol, req EvalRequest) (int, error) {
	days := s.quotes.Days(symbol)
	if days == 0 {
		return 0, types.Errorf(types.ErrMissingQuote, "no quotes for symbol %s", symbol)
	}
	switch {
	case req.Date != "":
		ds, ok := s.quotes.(daySource)
		if !ok {
			return 0, types.Errorf(types.ErrNoDates, "quote source has no trading dates")
		}
		t, err := jodaTime.Parse(s.opts.DateLayout, req.Date)
		if err != nil {
			return 0, errors.Wrapf(errBadRequest, "date %q does not match %s", req.Date, s.opts.DateLayout)
		}
		day, ok := ds.DayOf(symbol, t)
		if ok {
			if dated, isDated := s.quotes.(types.DatedSource); isDated {
				d, err := dated.Date(symbol, day)
				ok = err == nil && d.Equal(t)
			}
		}
		if !ok {
			return 0, types.Errorf(types.ErrDayOutOfRange, "%s is not a trading day of %s", req.Date, symbol)
		}
		return day, nil
	case req.Day == nil:
		return days - 1, nil
	case *req.Day < 0:
		return days + *req.Day, nil
	default:
		return *req.Day, nil
	}
}

func (s *Server) scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	vars, err := wire.Variables(req.Variables)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	expr, err := s.compile(req.Formula, vars)
	if err != nil {
		s.fail(c, err)
		return
	}

	symbols := make([]types.Symbol, len(req.Symbols))
	for i, sym := range req.Symbols {
		symbols[i] = types.Symbol(sym)
	}
	res, err := s.scanner.Run(c.Request.Context(), expr, s.quotes, vars, scan.Request{
		Symbols:     symbols,
		From:        req.From,
		To:          req.To,
		Last:        req.Last,
		MatchesOnly: req.MatchesOnly,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// errBadRequest marks client errors that are not Gondola errors.
var errBadRequest = errors.New("bad request")

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("rejected request", slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// fail answers err with the status of its category.
func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, errBadRequest) || errors.Is(err, wire.ErrInvalid) {
		s.badRequest(c, err)
		return
	}
	ge, ok := types.AsError(err)
	if !ok {
		s.logger.Error("request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch ge.Category() {
	case types.CategoryParse, types.CategoryType:
		status = http.StatusBadRequest
	case types.CategoryEvaluation:
		status = http.StatusUnprocessableEntity
	}
	resp := ErrorResponse{
		Error:    ge.Error(),
		Code:     string(ge.Code),
		Category: ge.Category().String(),
		Line:     ge.Line,
		Symbol:   string(ge.Symbol),
	}
	if ge.Position >= 0 {
		resp.Position = ge.Position
	}
	if ge.HasDay {
		day := ge.Day
		resp.Day = &day
	}
	s.logger.Debug("request failed", slog.String("code", resp.Code), slog.String("error", resp.Error))
	c.JSON(status, resp)
}
