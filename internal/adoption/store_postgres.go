package adoption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// PostgresStore persists adoptions in PostgreSQL. The unique index on
// (consumer_id, decision_id) is the duplicate guard.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) BulkUpsert(ctx context.Context, rows []ConsumerAdoption) ([]ConsumerAdoption, error) {
	query := `
		INSERT INTO consumer_adoptions (id, consumer_id, decision_id, adoption_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (consumer_id, decision_id) DO NOTHING
	`
	var inserted []ConsumerAdoption
	duplicates := 0
	for _, row := range rows {
		res, err := s.db.ExecContext(ctx, query,
			row.ID.String(), row.ConsumerID.String(), row.DecisionID.String(), row.AdoptionDate)
		if err != nil {
			if isForeignKeyViolation(err) {
				return inserted, fmt.Errorf("adoption for decision %s: %w", row.DecisionID, sentinel.ErrInvalidReference)
			}
			return inserted, fmt.Errorf("insert adoption: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("insert adoption: %w", err)
		}
		if affected == 0 {
			duplicates++
			continue
		}
		inserted = append(inserted, row)
	}
	if duplicates > 0 {
		return inserted, fmt.Errorf("%d adoption rows already exist: %w", duplicates, sentinel.ErrConflict)
	}
	return inserted, nil
}

func (s *PostgresStore) ListByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]ConsumerAdoption, error) {
	query := `
		SELECT id, consumer_id, decision_id, adoption_date
		FROM consumer_adoptions
		WHERE consumer_id = $1
		ORDER BY adoption_date, id
	`
	rows, err := s.db.QueryContext(ctx, query, consumerID.String())
	if err != nil {
		return nil, fmt.Errorf("list adoptions: %w", err)
	}
	defer rows.Close()

	var out []ConsumerAdoption
	for rows.Next() {
		var (
			row                             ConsumerAdoption
			rawID, rawConsumer, rawDecision string
		)
		if err := rows.Scan(&rawID, &rawConsumer, &rawDecision, &row.AdoptionDate); err != nil {
			return nil, fmt.Errorf("scan adoption: %w", err)
		}
		if row.ID, err = id.ParseAdoptionID(rawID); err != nil {
			return nil, fmt.Errorf("scan adoption id: %w", err)
		}
		if row.ConsumerID, err = id.ParseConsumerID(rawConsumer); err != nil {
			return nil, fmt.Errorf("scan adoption consumer_id: %w", err)
		}
		if row.DecisionID, err = id.ParseDecisionID(rawDecision); err != nil {
			return nil, fmt.Errorf("scan adoption decision_id: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
