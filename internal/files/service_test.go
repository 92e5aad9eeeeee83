package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hostpay/internal/fees"
	"hostpay/internal/pricefeed"
	"hostpay/internal/storage"
)

type memFileStore struct {
	files map[uuid.UUID]storage.FileRecord
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: map[uuid.UUID]storage.FileRecord{}}
}

func (m *memFileStore) InsertFile(ctx context.Context, record storage.FileRecord) error {
	m.files[record.ID] = record
	return nil
}

func (m *memFileStore) GetFile(ctx context.Context, id uuid.UUID) (storage.FileRecord, error) {
	record, ok := m.files[id]
	if !ok {
		return storage.FileRecord{}, storage.ErrFileNotFound
	}
	return record, nil
}

func (m *memFileStore) ListFiles(ctx context.Context, limit int) ([]storage.FileRecord, error) {
	out := make([]storage.FileRecord, 0, len(m.files))
	for _, record := range m.files {
		out = append(out, record)
	}
	return out, nil
}

func (m *memFileStore) UpdateFile(ctx context.Context, record storage.FileRecord) error {
	if _, ok := m.files[record.ID]; !ok {
		return storage.ErrFileNotFound
	}
	m.files[record.ID] = record
	return nil
}

func (m *memFileStore) PurgeIncompleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for id, record := range m.files {
		if !record.UploadComplete && record.CreatedAt.Before(cutoff) {
			delete(m.files, id)
			purged++
		}
	}
	return purged, nil
}

type memAddressBook struct {
	rows []storage.DerivedAddress
}

func (m *memAddressBook) InsertDerivedAddress(ctx context.Context, addr storage.DerivedAddress) error {
	m.rows = append(m.rows, addr)
	return nil
}

func (m *memAddressBook) ListDerivedAddresses(ctx context.Context) ([]storage.DerivedAddress, error) {
	return m.rows, nil
}

type stubWallet struct {
	next uint32
}

func (w *stubWallet) NextIndex() (uint32, error) {
	idx := w.next
	w.next++
	return idx, nil
}

func (w *stubWallet) DeriveAddress(index uint32) (string, error) {
	return fmt.Sprintf("addr-%d", index), nil
}

type failingQuoter struct {
	err error
}

func (q *failingQuoter) Quote(ctx context.Context, sizeBytes int64) (fees.Quote, error) {
	return fees.Quote{}, q.err
}

func testService(t *testing.T) (*Service, *memFileStore, *memAddressBook) {
	t.Helper()
	store := newMemFileStore()
	addrs := &memAddressBook{}
	quoter, err := fees.NewFixedQuoter(decimal.NewFromInt(42))
	if err != nil {
		t.Fatalf("fixed quoter: %v", err)
	}
	svc := New(store, addrs, &stubWallet{}, quoter, zerolog.Nop())
	return svc, store, addrs
}

func TestCreateAdmitsValidFile(t *testing.T) {
	svc, store, addrs := testService(t)

	record, err := svc.Create(context.Background(), CreateInput{
		SchemaVersion: 1,
		Size:          5 * (1 << 20),
		UserID:        "u1",
		Meta:          json.RawMessage(`{"name":"video.mp4"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if record.UpdateIndex != 1 {
		t.Fatalf("fresh record must start at updateIndex 1, got %d", record.UpdateIndex)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("createdTimestamp must be set by the gate")
	}
	if record.PaymentAddress != "addr-0" {
		t.Fatalf("expected deposit address addr-0, got %s", record.PaymentAddress)
	}
	if !record.HostingCost.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("hosting cost must come from the quote, got %s", record.HostingCost)
	}
	if len(store.files) != 1 {
		t.Fatalf("record must be persisted, store has %d rows", len(store.files))
	}
	if len(addrs.rows) != 1 || addrs.rows[0].FileID != record.ID {
		t.Fatalf("derived address must be registered for the file, got %#v", addrs.rows)
	}
}

func TestCreateBindsDistinctAddresses(t *testing.T) {
	svc, _, _ := testService(t)

	a, err := svc.Create(context.Background(), CreateInput{SchemaVersion: 1, Size: 10})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.Create(context.Background(), CreateInput{SchemaVersion: 1, Size: 10})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.PaymentAddress == b.PaymentAddress {
		t.Fatalf("two files must never share a deposit address: %s", a.PaymentAddress)
	}
}

func TestCreateRejectsMissingRequiredFields(t *testing.T) {
	svc, store, _ := testService(t)

	cases := []CreateInput{
		{Size: 10},             // schemaVersion missing
		{SchemaVersion: 1},     // size missing
		{SchemaVersion: -1, Size: 10},
		{SchemaVersion: 1, Size: -10},
	}
	for i, input := range cases {
		var vErr *ValidationError
		if _, err := svc.Create(context.Background(), input); !errors.As(err, &vErr) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}
	if len(store.files) != 0 {
		t.Fatal("rejected payloads must not be persisted")
	}
}

func TestCreateRejectsControllerOwnedFields(t *testing.T) {
	svc, _, _ := testService(t)

	cases := []struct {
		field string
		input CreateInput
	}{
		{"updateIndex", CreateInput{SchemaVersion: 1, Size: 10, UpdateIndex: 5}},
		{"createdTimestamp", CreateInput{SchemaVersion: 1, Size: 10, CreatedTimestamp: 1}},
		{"lastAccessed", CreateInput{SchemaVersion: 1, Size: 10, LastAccessed: 1}},
	}
	for _, tc := range cases {
		var vErr *ValidationError
		if _, err := svc.Create(context.Background(), tc.input); !errors.As(err, &vErr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
		} else if vErr.Field != tc.field {
			t.Fatalf("expected rejection of %s, got %s", tc.field, vErr.Field)
		}
	}
}

func TestCreateQuoteFailurePersistsNothing(t *testing.T) {
	store := newMemFileStore()
	addrs := &memAddressBook{}
	svc := New(store, addrs, &stubWallet{}, &failingQuoter{err: pricefeed.ErrPriceUnavailable}, zerolog.Nop())

	_, err := svc.Create(context.Background(), CreateInput{SchemaVersion: 1, Size: 10})
	if !errors.Is(err, pricefeed.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if len(store.files) != 0 || len(addrs.rows) != 0 {
		t.Fatal("a failed quote must leave no partial state behind")
	}
}

func TestUpdateIncrementsIndexByExactlyOne(t *testing.T) {
	svc, _, _ := testService(t)

	record, err := svc.Create(context.Background(), CreateInput{SchemaVersion: 1, Size: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(context.Background(), record.ID, UpdateInput{Meta: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdateIndex != record.UpdateIndex+1 {
		t.Fatalf("updateIndex must advance by exactly 1: %d -> %d", record.UpdateIndex, updated.UpdateIndex)
	}
	if updated.LastAccessed == nil {
		t.Fatal("lastAccessed must be refreshed on update")
	}

	again, err := svc.Update(context.Background(), record.ID, UpdateInput{UserID: "u2"})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if again.UpdateIndex != 3 {
		t.Fatalf("revision counter is append-only, expected 3, got %d", again.UpdateIndex)
	}
}

func TestUpdateRejectsControllerOwnedFields(t *testing.T) {
	svc, _, _ := testService(t)

	record, err := svc.Create(context.Background(), CreateInput{SchemaVersion: 1, Size: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var vErr *ValidationError
	if _, err := svc.Update(context.Background(), record.ID, UpdateInput{UpdateIndex: 7}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// The record is untouched after a rejected update.
	current, err := svc.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.UpdateIndex != 1 {
		t.Fatalf("rejected update must not advance the counter, got %d", current.UpdateIndex)
	}
}

func TestUpdateMissingFile(t *testing.T) {
	svc, _, _ := testService(t)

	_, err := svc.Update(context.Background(), uuid.New(), UpdateInput{UserID: "u"})
	if !errors.Is(err, storage.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}
