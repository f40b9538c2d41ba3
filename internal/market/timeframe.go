package market

import (
	"fmt"
	"time"
)

// Timeframe is the bar interval for historical data.
type Timeframe string

const (
	TimeframeMinute     Timeframe = "1m"
	Timeframe5Minute    Timeframe = "5m"
	Timeframe15Minute   Timeframe = "15m"
	Timeframe30Minute   Timeframe = "30m"
	TimeframeHour       Timeframe = "1h"
	Timeframe4Hour      Timeframe = "4h"
	TimeframeDay        Timeframe = "1d"
	TimeframeWeek       Timeframe = "1w"
	TimeframeMonth      Timeframe = "1M"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeMinute:   time.Minute,
	Timeframe5Minute:  5 * time.Minute,
	Timeframe15Minute: 15 * time.Minute,
	Timeframe30Minute: 30 * time.Minute,
	TimeframeHour:     time.Hour,
	Timeframe4Hour:    4 * time.Hour,
	TimeframeDay:      24 * time.Hour,
	TimeframeWeek:     7 * 24 * time.Hour,
	// Months are irregular; 30 days is close enough for cost estimation.
	TimeframeMonth: 30 * 24 * time.Hour,
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the nominal length of one bar.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// ParseTimeframe validates and returns the timeframe for s.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("invalid timeframe: %q", s)
	}
	return tf, nil
}

// Timeframes returns the supported timeframes in ascending bar length.
func Timeframes() []Timeframe {
	return []Timeframe{
		TimeframeMinute, Timeframe5Minute, Timeframe15Minute, Timeframe30Minute,
		TimeframeHour, Timeframe4Hour, TimeframeDay, TimeframeWeek, TimeframeMonth,
	}
}
