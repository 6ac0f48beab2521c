package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one persisted observation of a tracked quantity.
type PriceSample struct {
	ID        int64
	CycleID   string
	Quantity  string
	Value     decimal.Decimal
	SampledAt time.Time
	CreatedAt time.Time
}

// AlertRecord audits a dispatched staleness alert.
type AlertRecord struct {
	ID        int64
	Quantity  string
	Failures  int
	LastError string
	LastGood  decimal.Decimal
	Channels  []string
	CreatedAt time.Time
}
