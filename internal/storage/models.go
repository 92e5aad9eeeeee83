package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FileRecord is a hosted-file metadata row with its attached fee quote.
// The quote fields are written once at admission and never recomputed.
type FileRecord struct {
	ID              uuid.UUID
	SchemaVersion   int
	SizeBytes       int64
	UserID          string
	Meta            json.RawMessage
	PaymentAddress  string
	DerivationIndex int64
	HostingCost     decimal.Decimal
	FiatAmount      decimal.Decimal
	CoinAmount      decimal.Decimal
	RateUsed        decimal.Decimal
	QuotedAt        time.Time
	CreatedAt       time.Time
	LastAccessed    *time.Time
	UpdateIndex     int
	UploadComplete  bool
}

// DerivedAddress binds a derivation index to the file it was quoted for.
// Rows are immutable once created and outlive their file record: funds
// can arrive on a deposit address after the upload was purged.
type DerivedAddress struct {
	Index     int64
	Address   string
	FileID    uuid.UUID
	CreatedAt time.Time
}

// SweepRun is the observability record of one consolidation run. It is
// not authoritative state; the ledger is.
type SweepRun struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Scanned     int
	Funded      int
	SweptAmount decimal.Decimal
	Failures    int
	TxIDs       []string
}
