package model

import "github.com/shopspring/decimal"

// Service is a catalog entry. Appointments copy Name, Duration and Price at
// booking time and never read them again.
type Service struct {
	ID         string          `json:"id"`
	BusinessID string          `json:"business_id"`
	Name       string          `json:"name"`
	Duration   int             `json:"duration"`
	Price      decimal.Decimal `json:"price"`
	IsActive   bool            `json:"is_active"`
}

// Hours is a business's opening window for one weekday (0 = Sunday).
type Hours struct {
	DayOfWeek int
	OpenTime  string
	CloseTime string
	IsClosed  bool
}

type Pet struct {
	ID         string
	CustomerID string
	Name       string
}

// Interval is a booked [Start, End) wall-clock range on one date.
type Interval struct {
	Start string
	End   string
}
