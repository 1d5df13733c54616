package evidence

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists evidence in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed evidence store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, e *Evidence) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO work_evidence (
			id, booking_id, submitter_addr, blob_urls, notes, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.BookingID, e.SubmitterAddr, pq.Array(e.BlobURLs), e.Notes,
		sql.NullString{String: e.TxHash, Valid: e.TxHash != ""}, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByBooking(ctx context.Context, bookingID string) ([]*Evidence, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, booking_id, submitter_addr, blob_urls, notes, tx_hash, created_at
		FROM work_evidence
		WHERE booking_id = $1
		ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Evidence
	for rows.Next() {
		var (
			e      Evidence
			urls   pq.StringArray
			txHash sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &e.SubmitterAddr, &urls, &e.Notes, &txHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.BlobURLs = []string(urls)
		if txHash.Valid {
			e.TxHash = txHash.String
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
