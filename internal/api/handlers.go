package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mdgate/internal/errors"
	"mdgate/internal/market"
	"mdgate/internal/provider"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Vendor  string      `json:"vendor,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	perr := errors.AsProviderError(err, "")
	if perr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(perr.RetryAfter/time.Second)))
	}
	c.JSON(perr.HTTPStatus(), Response{
		Success: false,
		Error:   perr.Message,
		Kind:    string(perr.Kind),
		Vendor:  perr.Vendor,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Kind:    string(errors.KindValidation),
	})
}

func intQuery(c *gin.Context, name string, fallback int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}

func (s *Server) getQuotes(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("symbols"))
	if raw == "" {
		badRequest(c, "symbols parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")
	for i, sym := range symbols {
		symbols[i] = strings.ToUpper(strings.TrimSpace(sym))
	}

	quotes, err := s.md.GetQuotes(c.Request.Context(), symbols)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, quotes)
}

func (s *Server) getBars(c *gin.Context) {
	tf := market.Timeframe(c.DefaultQuery("timeframe", string(market.TimeframeDay)))
	if !tf.Valid() {
		badRequest(c, "invalid timeframe")
		return
	}

	now := market.Now()
	start, okStart := intQuery(c, "start", now-30*86400)
	if !okStart {
		return
	}
	end, okEnd := intQuery(c, "end", now)
	if !okEnd {
		return
	}
	if start >= end {
		badRequest(c, "start must be before end")
		return
	}

	bars, err := s.md.GetHistoricalBars(c.Request.Context(), market.BarsRequest{
		Symbol:    strings.ToUpper(c.Param("symbol")),
		Timeframe: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, bars)
}

func (s *Server) getNews(c *gin.Context) {
	from, okFrom := intQuery(c, "from", 0)
	if !okFrom {
		return
	}
	to, okTo := intQuery(c, "to", 0)
	if !okTo {
		return
	}
	limit, okLimit := intQuery(c, "limit", 50)
	if !okLimit {
		return
	}

	items, err := s.md.GetNews(c.Request.Context(), market.NewsRequest{
		Symbol: strings.ToUpper(c.Query("symbol")),
		From:   from,
		To:     to,
		Limit:  int(limit),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, items)
}

func (s *Server) getOptionsChain(c *gin.Context) {
	expiration, okExp := intQuery(c, "expiration", 0)
	if !okExp {
		return
	}

	chain, err := s.md.GetOptionsChain(c.Request.Context(), market.ChainRequest{
		Underlying: strings.ToUpper(c.Param("underlying")),
		Expiration: expiration,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, chain)
}

func (s *Server) searchSymbols(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "q parameter is required")
		return
	}

	symbols, err := s.md.SearchSymbols(c.Request.Context(), query)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, symbols)
}

func (s *Server) getCacheStats(c *gin.Context) {
	ok(c, s.cache.Stats())
}

func (s *Server) invalidateSymbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	removed := s.cache.InvalidateTag(provider.SymbolTag(symbol))
	ok(c, gin.H{"symbol": symbol, "removed": removed})
}

func (s *Server) getHealth(c *gin.Context) {
	vendors := s.md.Health()
	status := http.StatusOK
	overall := "ok"
	for _, vh := range vendors {
		if !vh.Healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"time":    time.Now().UTC(),
		"vendors": vendors,
	})
}
