package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface so pgxpool.Pool and pgxmock both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id::text, appointment_id, user_id, intake, status, confirmed_by, confirmed_at,
		rejection_reason, checked_in, checked_in_at, email_status, created_at, updated_at`

// PostgresRepository stores appointments in Postgres with the intake form as JSONB.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	intake, err := json.Marshal(appt.Intake)
	if err != nil {
		return fmt.Errorf("appointments: encode intake: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (id, appointment_id, user_id, intake, status, confirmed_by, confirmed_at,
			rejection_reason, checked_in, checked_in_at, email_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		appt.ID, appt.ReferenceID, appt.UserID, intake, string(appt.Status), appt.ConfirmedBy, appt.ConfirmedAt,
		appt.RejectionReason, appt.CheckedIn, appt.CheckedInAt, string(appt.EmailStatus), appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", mapWriteError(err))
	}
	return nil
}

// recordKey canonicalizes id for the UUID primary key. Anything that is not a
// UUID cannot name a stored appointment.
func recordKey(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrNotFound
	}
	return parsed.String(), nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	key, err := recordKey(id)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, key)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM appointments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by user: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM appointments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	key, err := recordKey(appt.ID)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET appointment_id = $2, status = $3, confirmed_by = $4, confirmed_at = $5, rejection_reason = $6,
			checked_in = $7, checked_in_at = $8, email_status = $9, updated_at = $10
		WHERE id = $1`,
		key, appt.ReferenceID, string(appt.Status), appt.ConfirmedBy, appt.ConfirmedAt, appt.RejectionReason,
		appt.CheckedIn, appt.CheckedInAt, string(appt.EmailStatus), appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", mapWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateEmailStatus(ctx context.Context, id string, status EmailStatus) error {
	key, err := recordKey(id)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET email_status = $2, updated_at = $3 WHERE id = $1`,
		key, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appointments: update email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	key, err := recordKey(id)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountConfirmedInYear(ctx context.Context, year int) (int64, error) {
	start, end := yearBounds(year)
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE created_at >= $1 AND created_at < $2 AND status IN ('Confirmed', 'Completed')`,
		start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: count confirmed: %w", err)
	}
	return n, nil
}

func scanAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt        Appointment
		intake      []byte
		status      string
		emailStatus string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.ReferenceID,
		&appt.UserID,
		&intake,
		&status,
		&appt.ConfirmedBy,
		&appt.ConfirmedAt,
		&appt.RejectionReason,
		&appt.CheckedIn,
		&appt.CheckedInAt,
		&emailStatus,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(intake) > 0 {
		if err := json.Unmarshal(intake, &appt.Intake); err != nil {
			return nil, fmt.Errorf("decode intake: %w", err)
		}
	}
	appt.Status = Status(status)
	appt.EmailStatus = EmailStatus(emailStatus)
	return &appt, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, pgErr.ConstraintName)
	}
	return err
}
