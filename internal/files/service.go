package files

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hostpay/internal/fees"
	"hostpay/internal/storage"
)

// ValidationError reports a rejected admission payload. It is surfaced to
// the caller as a bad request and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("files: property %q %s", e.Field, e.Reason)
}

// CreateInput is the caller-supplied payload for file admission. The
// updateIndex, createdTimestamp, and lastAccessed properties are owned by
// this service; a payload carrying any of them is rejected.
type CreateInput struct {
	SchemaVersion    int64           `json:"schemaVersion"`
	Size             int64           `json:"size"`
	UserID           string          `json:"userId,omitempty"`
	Meta             json.RawMessage `json:"meta,omitempty"`
	UpdateIndex      int64           `json:"updateIndex,omitempty"`
	CreatedTimestamp int64           `json:"createdTimestamp,omitempty"`
	LastAccessed     int64           `json:"lastAccessed,omitempty"`
}

// UpdateInput is the caller-supplied payload for a file update. Zero
// values leave the stored field unchanged.
type UpdateInput struct {
	SchemaVersion    int64           `json:"schemaVersion,omitempty"`
	Size             int64           `json:"size,omitempty"`
	UserID           string          `json:"userId,omitempty"`
	Meta             json.RawMessage `json:"meta,omitempty"`
	UploadComplete   *bool           `json:"uploadComplete,omitempty"`
	UpdateIndex      int64           `json:"updateIndex,omitempty"`
	CreatedTimestamp int64           `json:"createdTimestamp,omitempty"`
	LastAccessed     int64           `json:"lastAccessed,omitempty"`
}

// WalletSource is the slice of the wallet store the payment gate needs:
// index reservation and pure address derivation.
type WalletSource interface {
	NextIndex() (uint32, error)
	DeriveAddress(index uint32) (string, error)
}

// Service is the payment gate: it admits file records, binds each one to
// a fee quote and a fresh deposit address, and enforces the append-only
// update bookkeeping.
type Service struct {
	store  storage.FileStore
	addrs  storage.AddressBook
	wallet WalletSource
	quoter fees.Quoter
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the payment gate.
func New(store storage.FileStore, addrs storage.AddressBook, wallet WalletSource, quoter fees.Quoter, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		addrs:  addrs,
		wallet: wallet,
		quoter: quoter,
		logger: logger.With().Str("component", "files").Logger(),
		now:    time.Now,
	}
}

// Create admits a new file record: validates the payload, quotes the
// hosting fee, derives a deposit address, and persists the record. On any
// failure nothing is persisted.
func (s *Service) Create(ctx context.Context, input CreateInput) (storage.FileRecord, error) {
	if err := validateCreate(input); err != nil {
		return storage.FileRecord{}, err
	}

	quote, err := s.quoter.Quote(ctx, input.Size)
	if err != nil {
		return storage.FileRecord{}, err
	}

	index, err := s.wallet.NextIndex()
	if err != nil {
		return storage.FileRecord{}, fmt.Errorf("reserve derivation index: %w", err)
	}
	address, err := s.wallet.DeriveAddress(index)
	if err != nil {
		return storage.FileRecord{}, fmt.Errorf("derive deposit address: %w", err)
	}

	now := s.now().UTC()
	record := storage.FileRecord{
		ID:              uuid.New(),
		SchemaVersion:   int(input.SchemaVersion),
		SizeBytes:       input.Size,
		UserID:          input.UserID,
		Meta:            input.Meta,
		PaymentAddress:  address,
		DerivationIndex: int64(index),
		HostingCost:     quote.SmallestUnit,
		FiatAmount:      quote.FiatAmount,
		CoinAmount:      quote.CoinAmount,
		RateUsed:        quote.RateUsed,
		QuotedAt:        quote.QuotedAt,
		CreatedAt:       now,
		UpdateIndex:     1,
	}

	// The address row goes in first: deposit addresses outlive file
	// records, so an orphaned address is consistent, a file without its
	// address is not.
	if err := s.addrs.InsertDerivedAddress(ctx, storage.DerivedAddress{
		Index:     int64(index),
		Address:   address,
		FileID:    record.ID,
		CreatedAt: now,
	}); err != nil {
		return storage.FileRecord{}, fmt.Errorf("register deposit address: %w", err)
	}
	if err := s.store.InsertFile(ctx, record); err != nil {
		return storage.FileRecord{}, fmt.Errorf("persist file record: %w", err)
	}

	s.logger.Info().
		Str("file_id", record.ID.String()).
		Int64("size_bytes", record.SizeBytes).
		Str("payment_address", address).
		Str("hosting_cost", record.HostingCost.String()).
		Msg("file admitted")

	return record, nil
}

// Update merges an update payload into an existing record. A successful
// merge refreshes lastAccessed and increments updateIndex by exactly one.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (storage.FileRecord, error) {
	if err := validateUpdate(input); err != nil {
		return storage.FileRecord{}, err
	}

	record, err := s.store.GetFile(ctx, id)
	if err != nil {
		return storage.FileRecord{}, err
	}

	if input.SchemaVersion != 0 {
		record.SchemaVersion = int(input.SchemaVersion)
	}
	if input.Size != 0 {
		record.SizeBytes = input.Size
	}
	if input.UserID != "" {
		record.UserID = input.UserID
	}
	if len(input.Meta) > 0 {
		record.Meta = input.Meta
	}
	if input.UploadComplete != nil {
		record.UploadComplete = *input.UploadComplete
	}

	now := s.now().UTC()
	record.LastAccessed = &now
	record.UpdateIndex++

	if err := s.store.UpdateFile(ctx, record); err != nil {
		return storage.FileRecord{}, err
	}
	return record, nil
}

// Get fetches one file record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (storage.FileRecord, error) {
	return s.store.GetFile(ctx, id)
}

// List lists recent file records.
func (s *Service) List(ctx context.Context, limit int) ([]storage.FileRecord, error) {
	return s.store.ListFiles(ctx, limit)
}

func validateCreate(input CreateInput) error {
	if input.SchemaVersion <= 0 {
		return &ValidationError{Field: "schemaVersion", Reason: "must be a positive number"}
	}
	if input.Size <= 0 {
		return &ValidationError{Field: "size", Reason: "must be a positive number"}
	}
	return checkForbidden(input.UpdateIndex, input.CreatedTimestamp, input.LastAccessed)
}

func validateUpdate(input UpdateInput) error {
	if input.SchemaVersion < 0 {
		return &ValidationError{Field: "schemaVersion", Reason: "must be a positive number"}
	}
	if input.Size < 0 {
		return &ValidationError{Field: "size", Reason: "must be a positive number"}
	}
	return checkForbidden(input.UpdateIndex, input.CreatedTimestamp, input.LastAccessed)
}

func checkForbidden(updateIndex, createdTimestamp, lastAccessed int64) error {
	if updateIndex != 0 {
		return &ValidationError{Field: "updateIndex", Reason: "not allowed"}
	}
	if createdTimestamp != 0 {
		return &ValidationError{Field: "createdTimestamp", Reason: "not allowed"}
	}
	if lastAccessed != 0 {
		return &ValidationError{Field: "lastAccessed", Reason: "not allowed"}
	}
	return nil
}
