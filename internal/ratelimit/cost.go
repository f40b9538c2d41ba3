package ratelimit

import (
	"time"

	"mdgate/internal/market"
)

// DefaultPageLimit is the bars-per-page most vendor aggregate endpoints
// return before pagination kicks in.
const DefaultPageLimit = 5000

// EstimateCost computes how many tokens a historical bars request should
// reserve up front: one token per expected paginated upstream call for the
// date range at the given timeframe. Reserving the whole cost atomically
// keeps one logical request from trickle-acquiring tokens page by page
// while other instances starve.
func EstimateCost(req market.BarsRequest, pageLimit int) int {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	barLen := req.Timeframe.Duration()
	if barLen <= 0 {
		return 1
	}
	span := time.Duration(req.End-req.Start) * time.Second
	if span <= 0 {
		return 1
	}
	bars := int64(span / barLen)
	if bars <= 0 {
		bars = 1
	}
	pages := (bars + int64(pageLimit) - 1) / int64(pageLimit)
	if pages < 1 {
		pages = 1
	}
	return int(pages)
}
