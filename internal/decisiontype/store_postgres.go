package decisiontype

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// PostgresStore persists decision types in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const typeColumns = `
	id, name, description, created_by, created_date, updated_by, updated_date, version`

func (s *PostgresStore) Insert(ctx context.Context, d *DecisionType) error {
	query := `
		INSERT INTO decision_types (` + typeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID.String(), d.Name, d.Description,
		d.CreatedBy.String(), d.CreatedDate, d.UpdatedBy.String(), d.UpdatedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert decision type: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert decision type: %w", err)
	}
	d.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, typeID id.DecisionTypeID) (*DecisionType, error) {
	query := `SELECT ` + typeColumns + ` FROM decision_types WHERE id = $1`
	d, err := scanDecisionType(s.db.QueryRowContext(ctx, query, typeID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision type %s: %w", typeID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find decision type: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *DecisionType) error {
	query := `
		UPDATE decision_types SET
			name = $2, description = $3, updated_by = $4, updated_date = $5,
			version = version + 1
		WHERE id = $1 AND version = $6
	`
	res, err := s.db.ExecContext(ctx, query,
		d.ID.String(), d.Name, d.Description,
		d.UpdatedBy.String(), d.UpdatedDate, d.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update decision type: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update decision type: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update decision type: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, d.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("decision type %s: %w", d.ID, sentinel.ErrLocked)
	}
	d.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, typeID id.DecisionTypeID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decision_types WHERE id = $1`, typeID.String())
	if err != nil {
		return fmt.Errorf("delete decision type: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete decision type: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("decision type %s: %w", typeID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]DecisionType, error) {
	query := `SELECT ` + typeColumns + ` FROM decision_types ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list decision types: %w", err)
	}
	defer rows.Close()

	var out []DecisionType
	for rows.Next() {
		d, err := scanDecisionType(rows)
		if err != nil {
			return nil, fmt.Errorf("list decision types: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecisionType(row rowScanner) (*DecisionType, error) {
	var (
		d                           DecisionType
		rawID, createdBy, updatedBy string
	)
	err := row.Scan(
		&rawID, &d.Name, &d.Description,
		&createdBy, &d.CreatedDate, &updatedBy, &d.UpdatedDate, &d.Version,
	)
	if err != nil {
		return nil, err
	}
	if d.ID, err = id.ParseDecisionTypeID(rawID); err != nil {
		return nil, fmt.Errorf("scan decision type id: %w", err)
	}
	if d.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, fmt.Errorf("scan decision type created_by: %w", err)
	}
	if d.UpdatedBy, err = id.ParseUserID(updatedBy); err != nil {
		return nil, fmt.Errorf("scan decision type updated_by: %w", err)
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
