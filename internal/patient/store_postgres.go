package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// PostgresStore persists patients in PostgreSQL. This store is pure I/O;
// lifecycle rules live on the entity and in the verification service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed patient store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const patientColumns = `
	id, nhs_number, title, given_name, surname, gender, date_of_birth,
	email, phone, address, post_code, notification_preference,
	validation_code, validation_code_expires_on, validation_code_matched_on,
	retry_count, created_by, created_date, updated_by, updated_date, version`

func (s *PostgresStore) Insert(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID.String(), p.NHSNumber, p.Title, p.GivenName, p.Surname, p.Gender, p.DateOfBirth,
		p.Email, p.Phone, p.Address, p.PostCode, string(p.NotificationPreference),
		nullString(p.ValidationCode), p.ValidationCodeExpiresOn, p.ValidationCodeMatchedOn,
		p.RetryCount, p.CreatedBy.String(), p.CreatedDate, p.UpdatedBy.String(), p.UpdatedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert patient: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	p.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, patientID id.PatientID) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	p, err := scanPatient(s.db.QueryRowContext(ctx, query, patientID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient %s: %w", patientID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find patient by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByNHSNumber(ctx context.Context, nhsNumber string) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE nhs_number = $1`
	p, err := scanPatient(s.db.QueryRowContext(ctx, query, nhsNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient with nhs number: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find patient by nhs number: %w", err)
	}
	return p, nil
}

// Update writes the full row guarded by the version column. Zero affected
// rows means the version moved underneath the caller, surfaced as ErrLocked
// so the service can treat the race as retryable.
func (s *PostgresStore) Update(ctx context.Context, p *Patient) error {
	query := `
		UPDATE patients SET
			title = $2, given_name = $3, surname = $4, gender = $5, date_of_birth = $6,
			email = $7, phone = $8, address = $9, post_code = $10, notification_preference = $11,
			validation_code = $12, validation_code_expires_on = $13, validation_code_matched_on = $14,
			retry_count = $15, updated_by = $16, updated_date = $17, version = version + 1
		WHERE id = $1 AND version = $18
	`
	res, err := s.db.ExecContext(ctx, query,
		p.ID.String(), p.Title, p.GivenName, p.Surname, p.Gender, p.DateOfBirth,
		p.Email, p.Phone, p.Address, p.PostCode, string(p.NotificationPreference),
		nullString(p.ValidationCode), p.ValidationCodeExpiresOn, p.ValidationCodeMatchedOn,
		p.RetryCount, p.UpdatedBy.String(), p.UpdatedDate, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, p.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("patient %s version %d: %w", p.ID, p.Version, sentinel.ErrLocked)
	}
	p.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, patientID id.PatientID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, patientID.String())
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("patient %s: %w", patientID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY created_date`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("list patients: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var (
		p                    Patient
		patientID, createdBy string
		updatedBy            string
		preference           string
		validationCode       sql.NullString
		expiresOn, matchedOn sql.NullTime
	)
	err := row.Scan(
		&patientID, &p.NHSNumber, &p.Title, &p.GivenName, &p.Surname, &p.Gender, &p.DateOfBirth,
		&p.Email, &p.Phone, &p.Address, &p.PostCode, &preference,
		&validationCode, &expiresOn, &matchedOn,
		&p.RetryCount, &createdBy, &p.CreatedDate, &updatedBy, &p.UpdatedDate, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	if p.ID, err = id.ParsePatientID(patientID); err != nil {
		return nil, err
	}
	if p.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, err
	}
	if p.UpdatedBy, err = id.ParseUserID(updatedBy); err != nil {
		return nil, err
	}
	p.NotificationPreference = NotificationPreference(preference)
	if validationCode.Valid {
		p.ValidationCode = validationCode.String
	}
	p.ValidationCodeExpiresOn = timePtr(expiresOn)
	p.ValidationCodeMatchedOn = timePtr(matchedOn)
	return &p, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation detects postgres unique-constraint errors (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
