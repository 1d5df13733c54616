package dispute

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists disputes in PostgreSQL. The single-active-
// dispute invariant is enforced by a partial unique index on
// (booking_id) WHERE active.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	if d.Reason == "" {
		return ErrEmptyReason
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, booking_id, raised_by, evidence_url, reason, active, tx_hash, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.BookingID, d.RaisedBy,
		sql.NullString{String: d.EvidenceURL, Valid: d.EvidenceURL != ""},
		d.Reason, d.Active,
		sql.NullString{String: d.TxHash, Valid: d.TxHash != ""},
		d.CreatedAt, nullTime(d.ResolvedAt),
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrActiveExists
	}
	return err
}

func (p *PostgresStore) GetActive(ctx context.Context, bookingID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, booking_id, raised_by, evidence_url, reason, active, tx_hash, created_at, resolved_at
		FROM disputes
		WHERE booking_id = $1 AND active`, bookingID)
	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

func (p *PostgresStore) Resolve(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE disputes SET active = FALSE, resolved_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListByBooking(ctx context.Context, bookingID string) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, booking_id, raised_by, evidence_url, reason, active, tx_hash, created_at, resolved_at
		FROM disputes
		WHERE booking_id = $1
		ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var (
		d           Dispute
		evidenceURL sql.NullString
		txHash      sql.NullString
		resolvedAt  sql.NullTime
	)
	err := row.Scan(&d.ID, &d.BookingID, &d.RaisedBy, &evidenceURL, &d.Reason, &d.Active, &txHash, &d.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if evidenceURL.Valid {
		d.EvidenceURL = evidenceURL.String
	}
	if txHash.Valid {
		d.TxHash = txHash.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return &d, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
