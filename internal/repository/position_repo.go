package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

type PositionRepo struct {
	db *sql.DB
}

func NewPositionRepo(db *sql.DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// ReplaceSnapshot swaps out the stored snapshot for one source. Records are
// immutable once ingested; a new feed pull replaces the whole set.
func (r *PositionRepo) ReplaceSnapshot(source string, records []domain.PositionRecord) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM positions WHERE source_system = ?", source); err != nil {
		return 0, fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO positions
		(source_system, isin, instrument, owner_id, owner_name, quantity, notional_value, ingested_at)
		VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		p := &records[i]
		_, err := stmt.Exec(
			source, p.ISIN, p.Instrument, p.OwnerID, p.OwnerName,
			p.Quantity, p.NotionalValue, p.IngestedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetSnapshot returns the stored snapshot for a source, ordered by owner
// then ISIN so repeated reads come back in the same order.
func (r *PositionRepo) GetSnapshot(source string) ([]domain.PositionRecord, error) {
	rows, err := r.db.Query(
		`SELECT source_system, isin, instrument, owner_id, owner_name, quantity, notional_value, ingested_at
		FROM positions WHERE source_system = ? ORDER BY owner_id, isin`, source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PositionRecord
	for rows.Next() {
		var p domain.PositionRecord
		var ownerName sql.NullString
		var ingestedAt string
		if err := rows.Scan(
			&p.SourceSystem, &p.ISIN, &p.Instrument, &p.OwnerID, &ownerName,
			&p.Quantity, &p.NotionalValue, &ingestedAt,
		); err != nil {
			return nil, err
		}
		if ownerName.Valid {
			p.OwnerName = ownerName.String
		}
		p.IngestedAt, _ = time.Parse(time.RFC3339, ingestedAt)
		records = append(records, p)
	}
	return records, rows.Err()
}

func (r *PositionRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&n)
	return n, err
}
