package consumer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// PostgresStore persists consumers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consumerColumns = `
	id, name, contact_url, secret_hash, active,
	created_by, created_date, updated_by, updated_date, version`

func (s *PostgresStore) Insert(ctx context.Context, c *Consumer) error {
	query := `
		INSERT INTO consumers (` + consumerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID.String(), c.Name, c.ContactURL, c.SecretHash, c.Active,
		c.CreatedBy.String(), c.CreatedDate, c.UpdatedBy.String(), c.UpdatedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert consumer: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert consumer: %w", err)
	}
	c.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, consumerID id.ConsumerID) (*Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM consumers WHERE id = $1`
	c, err := scanConsumer(s.db.QueryRowContext(ctx, query, consumerID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consumer %s: %w", consumerID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find consumer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Consumer) error {
	query := `
		UPDATE consumers SET
			name = $2, contact_url = $3, secret_hash = $4, active = $5,
			updated_by = $6, updated_date = $7, version = version + 1
		WHERE id = $1 AND version = $8
	`
	res, err := s.db.ExecContext(ctx, query,
		c.ID.String(), c.Name, c.ContactURL, c.SecretHash, c.Active,
		c.UpdatedBy.String(), c.UpdatedDate, c.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update consumer: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update consumer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consumer: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, c.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("consumer %s: %w", c.ID, sentinel.ErrLocked)
	}
	c.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM consumers ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	defer rows.Close()

	var out []Consumer
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, fmt.Errorf("list consumers: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsumer(row rowScanner) (*Consumer, error) {
	var (
		c                           Consumer
		rawID, createdBy, updatedBy string
	)
	err := row.Scan(
		&rawID, &c.Name, &c.ContactURL, &c.SecretHash, &c.Active,
		&createdBy, &c.CreatedDate, &updatedBy, &c.UpdatedDate, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	if c.ID, err = id.ParseConsumerID(rawID); err != nil {
		return nil, fmt.Errorf("scan consumer id: %w", err)
	}
	if c.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, fmt.Errorf("scan consumer created_by: %w", err)
	}
	if c.UpdatedBy, err = id.ParseUserID(updatedBy); err != nil {
		return nil, fmt.Errorf("scan consumer updated_by: %w", err)
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
