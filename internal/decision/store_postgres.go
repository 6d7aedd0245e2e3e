package decision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// PostgresStore persists decisions in PostgreSQL. Foreign keys to patients
// and decision_types enforce referential integrity; violations surface as
// ErrInvalidReference.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const decisionColumns = `
	id, patient_id, decision_type_id, decision_choice,
	responsible_person_given_name, responsible_person_surname, responsible_person_relationship,
	created_by, created_date, updated_by, updated_date, version`

func (s *PostgresStore) Insert(ctx context.Context, d *Decision) error {
	query := `
		INSERT INTO decisions (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID.String(), d.PatientID.String(), d.DecisionTypeID.String(), string(d.Choice),
		d.ResponsiblePersonGivenName, d.ResponsiblePersonSurname, d.ResponsiblePersonRelationship,
		d.CreatedBy.String(), d.CreatedDate, d.UpdatedBy.String(), d.UpdatedDate,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("insert decision: %w", sentinel.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("insert decision: %w", sentinel.ErrInvalidReference)
		default:
			return fmt.Errorf("insert decision: %w", err)
		}
	}
	d.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, decisionID id.DecisionID) (*Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`
	d, err := scanDecision(s.db.QueryRowContext(ctx, query, decisionID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision %s: %w", decisionID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find decision: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *Decision) error {
	query := `
		UPDATE decisions SET
			decision_choice = $2,
			responsible_person_given_name = $3, responsible_person_surname = $4,
			responsible_person_relationship = $5,
			updated_by = $6, updated_date = $7, version = version + 1
		WHERE id = $1 AND version = $8
	`
	res, err := s.db.ExecContext(ctx, query,
		d.ID.String(), string(d.Choice),
		d.ResponsiblePersonGivenName, d.ResponsiblePersonSurname, d.ResponsiblePersonRelationship,
		d.UpdatedBy.String(), d.UpdatedDate, d.Version,
	)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, d.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("decision %s: %w", d.ID, sentinel.ErrLocked)
	}
	d.Version++
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PatientID) ([]Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE patient_id = $1 ORDER BY created_date, id`
	return s.queryDecisions(ctx, query, patientID.String())
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE 1=1`
	args := []any{}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_date >= $%d", len(args))
	}
	if f.DecisionTypeID != nil {
		args = append(args, f.DecisionTypeID.String())
		query += fmt.Sprintf(" AND decision_type_id = $%d", len(args))
	}
	query += " ORDER BY created_date, id"
	return s.queryDecisions(ctx, query, args...)
}

func (s *PostgresStore) queryDecisions(ctx context.Context, query string, args ...any) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("list decisions: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var (
		d                            Decision
		rawID, patientID, typeID     string
		choice, createdBy, updatedBy string
	)
	err := row.Scan(
		&rawID, &patientID, &typeID, &choice,
		&d.ResponsiblePersonGivenName, &d.ResponsiblePersonSurname, &d.ResponsiblePersonRelationship,
		&createdBy, &d.CreatedDate, &updatedBy, &d.UpdatedDate, &d.Version,
	)
	if err != nil {
		return nil, err
	}
	d.Choice = Choice(choice)
	if d.ID, err = id.ParseDecisionID(rawID); err != nil {
		return nil, fmt.Errorf("scan decision id: %w", err)
	}
	if d.PatientID, err = id.ParsePatientID(patientID); err != nil {
		return nil, fmt.Errorf("scan decision patient_id: %w", err)
	}
	if d.DecisionTypeID, err = id.ParseDecisionTypeID(typeID); err != nil {
		return nil, fmt.Errorf("scan decision decision_type_id: %w", err)
	}
	if d.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, fmt.Errorf("scan decision created_by: %w", err)
	}
	if d.UpdatedBy, err = id.ParseUserID(updatedBy); err != nil {
		return nil, fmt.Errorf("scan decision updated_by: %w", err)
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation detects postgres foreign-key errors (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
