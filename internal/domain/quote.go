package domain

import "time"

// Quote is a point-in-time price observation from one venue. Quotes are
// fetched fresh for every orchestration attempt and are used only for profit
// accounting; market orders execute at whatever price the venue fills.
type Quote struct {
	Venue      Venue
	Symbol     string
	Price      float64
	ObservedAt time.Time
}

// PricePoint is one row of persisted price history.
type PricePoint struct {
	ID        int64
	Symbol    string
	Venue     Venue
	Price     float64
	Timestamp time.Time
}
