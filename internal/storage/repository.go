package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrFileNotFound indicates the requested file record does not exist.
	ErrFileNotFound = errors.New("storage: file not found")
)

const (
	insertFileSQL = `INSERT INTO files (
        id,
        schema_version,
        size_bytes,
        user_id,
        meta,
        payment_address,
        derivation_index,
        hosting_cost,
        fiat_amount,
        coin_amount,
        rate_used,
        quoted_at,
        created_timestamp,
        last_accessed,
        update_index,
        upload_complete
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
    );`

	fileColumns = `id,
        schema_version,
        size_bytes,
        user_id,
        meta,
        payment_address,
        derivation_index,
        hosting_cost::text,
        fiat_amount::text,
        coin_amount::text,
        rate_used::text,
        quoted_at,
        created_timestamp,
        last_accessed,
        update_index,
        upload_complete`

	getFileSQL = `SELECT ` + fileColumns + ` FROM files WHERE id = $1;`

	listFilesSQL = `SELECT ` + fileColumns + `
    FROM files
    ORDER BY created_timestamp DESC
    LIMIT $1;`

	updateFileSQL = `UPDATE files
    SET schema_version = $2,
        size_bytes     = $3,
        user_id        = $4,
        meta           = $5,
        last_accessed  = $6,
        update_index   = $7,
        upload_complete = $8
    WHERE id = $1;`

	purgeIncompleteSQL = `DELETE FROM files
    WHERE NOT upload_complete
      AND created_timestamp < $1;`

	insertDerivedAddressSQL = `INSERT INTO derived_addresses (
        derivation_index,
        address,
        file_id,
        created_at
    ) VALUES (
        $1,$2,$3,$4
    );`

	listDerivedAddressesSQL = `SELECT
        derivation_index,
        address,
        file_id,
        created_at
    FROM derived_addresses
    ORDER BY derivation_index;`

	insertSweepRunSQL = `INSERT INTO sweep_runs (
        started_at,
        finished_at,
        scanned,
        funded,
        swept_amount,
        failures,
        txids
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	sweepRunColumns = `id,
        started_at,
        finished_at,
        scanned,
        funded,
        swept_amount::text,
        failures,
        txids`

	listRecentSweepRunsSQL = `SELECT ` + sweepRunColumns + `
    FROM sweep_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	listSweepRunsBetweenSQL = `SELECT ` + sweepRunColumns + `
    FROM sweep_runs
    WHERE started_at >= $1
      AND started_at < $2
    ORDER BY started_at;`
)

// FileStore defines persistence of file records and their fee quotes.
type FileStore interface {
	InsertFile(ctx context.Context, record FileRecord) error
	GetFile(ctx context.Context, id uuid.UUID) (FileRecord, error)
	ListFiles(ctx context.Context, limit int) ([]FileRecord, error)
	UpdateFile(ctx context.Context, record FileRecord) error
	PurgeIncompleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AddressBook defines persistence of derived deposit addresses.
type AddressBook interface {
	InsertDerivedAddress(ctx context.Context, addr DerivedAddress) error
	ListDerivedAddresses(ctx context.Context) ([]DerivedAddress, error)
}

// SweepLog defines persistence of sweep-run observability records.
type SweepLog interface {
	InsertSweepRun(ctx context.Context, run SweepRun) error
	ListRecentSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
	ListSweepRunsBetween(ctx context.Context, from, to time.Time) ([]SweepRun, error)
}

// Store aggregates access to files, derived addresses, and sweep runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertFile persists a newly admitted file record.
func (s *Store) InsertFile(ctx context.Context, record FileRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertFileSQL,
		record.ID,
		record.SchemaVersion,
		record.SizeBytes,
		record.UserID,
		[]byte(record.Meta),
		record.PaymentAddress,
		record.DerivationIndex,
		record.HostingCost.String(),
		record.FiatAmount.String(),
		record.CoinAmount.String(),
		record.RateUsed.String(),
		record.QuotedAt,
		record.CreatedAt,
		record.LastAccessed,
		record.UpdateIndex,
		record.UploadComplete,
	)
	if execErr != nil {
		return fmt.Errorf("insert file: %w", execErr)
	}
	return nil
}

// GetFile fetches one file record by id.
func (s *Store) GetFile(ctx context.Context, id uuid.UUID) (FileRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return FileRecord{}, err
	}

	record, scanErr := scanFileRecord(pool.QueryRow(ctx, getFileSQL, id))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return FileRecord{}, ErrFileNotFound
		}
		return FileRecord{}, scanErr
	}
	return record, nil
}

// ListFiles lists the most recent file records.
func (s *Store) ListFiles(ctx context.Context, limit int) ([]FileRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFilesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list files: %w", queryErr)
	}
	defer rows.Close()

	records := make([]FileRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanFileRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// UpdateFile overwrites the mutable fields of a file record.
func (s *Store) UpdateFile(ctx context.Context, record FileRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, updateFileSQL,
		record.ID,
		record.SchemaVersion,
		record.SizeBytes,
		record.UserID,
		[]byte(record.Meta),
		record.LastAccessed,
		record.UpdateIndex,
		record.UploadComplete,
	)
	if execErr != nil {
		return fmt.Errorf("update file: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// PurgeIncompleteBefore removes incomplete uploads older than cutoff and
// reports how many rows went away. Re-running on cleaned state removes
// zero rows.
func (s *Store) PurgeIncompleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, purgeIncompleteSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("purge incomplete files: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// InsertDerivedAddress records a freshly derived deposit address.
func (s *Store) InsertDerivedAddress(ctx context.Context, addr DerivedAddress) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertDerivedAddressSQL,
		addr.Index,
		addr.Address,
		addr.FileID,
		addr.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert derived address: %w", execErr)
	}
	return nil
}

// ListDerivedAddresses lists every derived address, oldest index first.
func (s *Store) ListDerivedAddresses(ctx context.Context) ([]DerivedAddress, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDerivedAddressesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list derived addresses: %w", queryErr)
	}
	defer rows.Close()

	addrs := make([]DerivedAddress, 0)
	for rows.Next() {
		var addr DerivedAddress
		if scanErr := rows.Scan(&addr.Index, &addr.Address, &addr.FileID, &addr.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		addrs = append(addrs, addr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return addrs, nil
}

// InsertSweepRun appends one sweep-run record to the log.
func (s *Store) InsertSweepRun(ctx context.Context, run SweepRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSweepRunSQL,
		run.StartedAt,
		run.FinishedAt,
		run.Scanned,
		run.Funded,
		run.SweptAmount.String(),
		run.Failures,
		run.TxIDs,
	)
	if execErr != nil {
		return fmt.Errorf("insert sweep run: %w", execErr)
	}
	return nil
}

// ListRecentSweepRuns lists the most recent sweep runs.
func (s *Store) ListRecentSweepRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSweepRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent sweep runs: %w", queryErr)
	}
	defer rows.Close()

	return collectSweepRuns(rows, limit)
}

// ListSweepRunsBetween lists sweep runs within a time window.
func (s *Store) ListSweepRunsBetween(ctx context.Context, from, to time.Time) ([]SweepRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSweepRunsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list sweep runs between: %w", queryErr)
	}
	defer rows.Close()

	return collectSweepRuns(rows, 0)
}

func collectSweepRuns(rows pgx.Rows, sizeHint int) ([]SweepRun, error) {
	runs := make([]SweepRun, 0, sizeHint)
	for rows.Next() {
		run, scanErr := scanSweepRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

func scanSweepRun(row pgx.Row) (SweepRun, error) {
	var (
		run   SweepRun
		swept string
	)
	if err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Scanned,
		&run.Funded,
		&swept,
		&run.Failures,
		&run.TxIDs,
	); err != nil {
		return SweepRun{}, err
	}

	amount, err := decimal.NewFromString(swept)
	if err != nil {
		return SweepRun{}, fmt.Errorf("parse swept amount: %w", err)
	}
	run.SweptAmount = amount
	return run, nil
}

func scanFileRecord(row pgx.Row) (FileRecord, error) {
	var (
		record      FileRecord
		meta        []byte
		hostingCost string
		fiatAmount  string
		coinAmount  string
		rateUsed    string
	)
	if err := row.Scan(
		&record.ID,
		&record.SchemaVersion,
		&record.SizeBytes,
		&record.UserID,
		&meta,
		&record.PaymentAddress,
		&record.DerivationIndex,
		&hostingCost,
		&fiatAmount,
		&coinAmount,
		&rateUsed,
		&record.QuotedAt,
		&record.CreatedAt,
		&record.LastAccessed,
		&record.UpdateIndex,
		&record.UploadComplete,
	); err != nil {
		return FileRecord{}, err
	}

	record.Meta = meta
	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&record.HostingCost, hostingCost},
		{&record.FiatAmount, fiatAmount},
		{&record.CoinAmount, coinAmount},
		{&record.RateUsed, rateUsed},
	} {
		value, err := decimal.NewFromString(field.src)
		if err != nil {
			return FileRecord{}, fmt.Errorf("parse numeric column: %w", err)
		}
		*field.dst = value
	}
	return record, nil
}

var (
	_ FileStore   = (*Store)(nil)
	_ AddressBook = (*Store)(nil)
	_ SweepLog    = (*Store)(nil)
)
