package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table. The UNIQUE
// (participant_id, event_id) index is the authoritative guard against
// double reservations; Find is only a fast-path check.
type ReservationRepo struct {
	db *database.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *database.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts res. A duplicate (participant, event) pair is reported as
// apperr.ErrAlreadyReserved.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, participant_id, event_id, created_at) VALUES (?, ?, ?, ?)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q, res.ID, res.ParticipantID, res.EventID, toMillis(res.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrAlreadyReserved
		}
		return storeError("insert reservation", err)
	}
	return nil
}

// Find returns the reservation for the pair or nil when none exists.
func (r *ReservationRepo) Find(ctx context.Context, participantID, eventID string) (*model.Reservation, error) {
	const q = `SELECT id, participant_id, event_id, created_at FROM reservations WHERE participant_id = ? AND event_id = ?`
	var res model.Reservation
	var createdAt int64
	err := conn(ctx, r.db).QueryRowContext(ctx, q, participantID, eventID).
		Scan(&res.ID, &res.ParticipantID, &res.EventID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("find reservation", err)
	}
	res.CreatedAt = fromMillis(createdAt)
	return &res, nil
}

// Delete removes the reservation for the pair and reports whether a row
// existed.
func (r *ReservationRepo) Delete(ctx context.Context, participantID, eventID string) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM reservations WHERE participant_id = ? AND event_id = ?`, participantID, eventID)
	if err != nil {
		return false, storeError("delete reservation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("delete reservation", err)
	}
	return n > 0, nil
}

// DeleteByEvent removes every reservation of the event and returns how many
// rows were deleted.
func (r *ReservationRepo) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reservations WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, storeError("delete event reservations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("delete event reservations", err)
	}
	return n, nil
}

// CountByEvent returns the number of live reservations of the event.
func (r *ReservationRepo) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, storeError("count reservations", err)
	}
	return n, nil
}

const msPerDay = 24 * 60 * 60 * 1000

// CountByDay returns the event's reservation counts per UTC calendar day,
// oldest day first.
func (r *ReservationRepo) CountByDay(ctx context.Context, eventID string) ([]model.DailyCount, error) {
	day := `created_at / ?`
	if r.db.Dialect == database.MySQL {
		day = `created_at DIV ?`
	}
	q := `SELECT ` + day + ` AS day_bucket, COUNT(*)
	      FROM reservations
	      WHERE event_id = ?
	      GROUP BY day_bucket
	      ORDER BY day_bucket`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, msPerDay, eventID)
	if err != nil {
		return nil, storeError("count reservations by day", err)
	}
	defer rows.Close()
	out := make([]model.DailyCount, 0)
	for rows.Next() {
		var d int64
		var c model.DailyCount
		if err := rows.Scan(&d, &c.Count); err != nil {
			return nil, storeError("scan daily count", err)
		}
		c.Date = fromMillis(d * msPerDay).Format(time.DateOnly)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("count reservations by day", err)
	}
	return out, nil
}

// ListByEvent returns the reservations of an event, newest first.
func (r *ReservationRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Reservation, error) {
	const q = `SELECT id, participant_id, event_id, created_at
	           FROM reservations
	           WHERE event_id = ?
	           ORDER BY created_at DESC, id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, storeError("list reservations", err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		var createdAt int64
		if err := rows.Scan(&res.ID, &res.ParticipantID, &res.EventID, &createdAt); err != nil {
			return nil, storeError("scan reservation", err)
		}
		res.CreatedAt = fromMillis(createdAt)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list reservations", err)
	}
	return out, nil
}

// ListByParticipant returns the participant's reservations joined with
// their events, newest reservation first.
func (r *ReservationRepo) ListByParticipant(ctx context.Context, participantID string) ([]model.ParticipantReservation, error) {
	const q = `SELECT r.id, r.participant_id, r.event_id, r.created_at,
	                  e.id, e.owner_id, e.title, e.description, e.location, e.scheduled_at,
	                  e.capacity, e.attendee_count, e.image_ref, e.created_at, e.updated_at, e.likes_count
	           FROM reservations r
	           JOIN events e ON e.id = r.event_id
	           WHERE r.participant_id = ?
	           ORDER BY r.created_at DESC, r.id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, participantID)
	if err != nil {
		return nil, storeError("list participant reservations", err)
	}
	defer rows.Close()
	out := make([]model.ParticipantReservation, 0)
	for rows.Next() {
		var pr model.ParticipantReservation
		var createdAt int64
		ev, err := scanEvent(prefixScanner{rows: rows, prefix: []any{
			&pr.Reservation.ID, &pr.Reservation.ParticipantID, &pr.Reservation.EventID, &createdAt,
		}})
		if err != nil {
			return nil, storeError("scan participant reservation", err)
		}
		pr.Reservation.CreatedAt = fromMillis(createdAt)
		pr.Event = ev
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list participant reservations", err)
	}
	return out, nil
}

// prefixScanner lets scanEvent read the trailing event columns of a joined
// row by prepending the leading destinations.
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(append([]any{}, p.prefix...), dest...)...)
}
