package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "idecide/pkg/domain"
)

// PostgresStore appends audit events to PostgreSQL. Events are never updated
// or deleted through this path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	query := `
		INSERT INTO audit_events (id, timestamp, action, patient_id, actor_id, detail, request_id, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	patientID := sql.NullString{String: event.PatientID.String(), Valid: !event.PatientID.IsNil()}
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.Action, patientID,
		event.ActorID, event.Detail, event.RequestID, event.ClientIP, event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PatientID) ([]Event, error) {
	query := `
		SELECT id, timestamp, action, patient_id, actor_id, detail, request_id, client_ip, user_agent
		FROM audit_events
		WHERE patient_id = $1
		ORDER BY timestamp
	`
	rows, err := s.db.QueryContext(ctx, query, patientID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e         Event
			patientID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &patientID,
			&e.ActorID, &e.Detail, &e.RequestID, &e.ClientIP, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		if patientID.Valid {
			if e.PatientID, err = id.ParsePatientID(patientID.String); err != nil {
				return nil, fmt.Errorf("list audit events: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
