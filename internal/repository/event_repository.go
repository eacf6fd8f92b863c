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

// EventRepo manages persistence for events. Timestamps are stored as UTC
// unix milliseconds so both dialects compare them as plain integers.
type EventRepo struct {
	db *database.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *database.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, owner_id, title, description, location, scheduled_at, capacity, attendee_count, image_ref, created_at, updated_at, likes_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var e model.Event
	var capacity sql.NullInt64
	var imageRef sql.NullString
	var scheduledAt, createdAt, updatedAt int64
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Location,
		&scheduledAt, &capacity, &e.AttendeeCount, &imageRef, &createdAt, &updatedAt, &e.LikesCount)
	if err != nil {
		return model.Event{}, err
	}
	e.ScheduledAt = fromMillis(scheduledAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	if imageRef.Valid {
		ref := imageRef.String
		e.ImageRef = &ref
	}
	return e, nil
}

// Create inserts a new event. The caller supplies every field including the
// ID; AttendeeCount is always persisted as zero.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, 0)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q,
		e.ID, e.OwnerID, e.Title, e.Description, e.Location,
		toMillis(e.ScheduledAt), nullInt(e.Capacity), nullString(e.ImageRef),
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	if err != nil {
		return storeError("insert event", err)
	}
	e.AttendeeCount = 0
	e.LikesCount = 0
	return nil
}

// GetByID returns the event or apperr.ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
}

// GetForUpdate loads the event and locks its row until the surrounding
// transaction ends. It must be called inside Transactor.WithTx.
func (r *EventRepo) GetForUpdate(ctx context.Context, id string) (*model.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`+forUpdate(r.db.Dialect), id)
}

func (r *EventRepo) get(ctx context.Context, q, id string) (*model.Event, error) {
	e, err := scanEvent(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, storeError("get event", err)
	}
	return &e, nil
}

// Update writes the mutable fields of e. AttendeeCount is not touched; it is
// owned by the reservation paths.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events
	           SET title = ?, description = ?, location = ?, scheduled_at = ?, capacity = ?, image_ref = ?, updated_at = ?
	           WHERE id = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		e.Title, e.Description, e.Location, toMillis(e.ScheduledAt),
		nullInt(e.Capacity), nullString(e.ImageRef), toMillis(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return storeError("update event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("update event", err)
	}
	if n == 0 {
		return apperr.ErrEventNotFound
	}
	return nil
}

// Delete removes the event row. It reports apperr.ErrEventNotFound when no
// row matched.
func (r *EventRepo) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return storeError("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("delete event", err)
	}
	if n == 0 {
		return apperr.ErrEventNotFound
	}
	return nil
}

// ListByOwner returns the owner's events, newest first.
func (r *EventRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE owner_id = ? ORDER BY created_at DESC, id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, storeError("list events", err)
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storeError("scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list events", err)
	}
	return events, nil
}

// TryIncrementAttendees takes one slot of the event. The guard is evaluated
// by the store under the row lock acquired by the UPDATE, so concurrent
// callers are totally ordered and each one sees every earlier commit. It
// reports false when the event is missing, already started or full; the
// caller re-reads the row to tell those apart.
func (r *EventRepo) TryIncrementAttendees(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `UPDATE events
	           SET attendee_count = attendee_count + 1
	           WHERE id = ? AND scheduled_at > ? AND (capacity IS NULL OR attendee_count < capacity)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, id, toMillis(now))
	if err != nil {
		return false, storeError("increment attendees", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("increment attendees", err)
	}
	return n == 1, nil
}

// DecrementAttendees releases one slot, never going below zero.
func (r *EventRepo) DecrementAttendees(ctx context.Context, id string) error {
	const q = `UPDATE events
	           SET attendee_count = CASE WHEN attendee_count > 0 THEN attendee_count - 1 ELSE 0 END
	           WHERE id = ?`
	if _, err := conn(ctx, r.db).ExecContext(ctx, q, id); err != nil {
		return storeError("decrement attendees", err)
	}
	return nil
}

// AttendeeCount returns the current counter of the event.
func (r *EventRepo) AttendeeCount(ctx context.Context, id string) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT attendee_count FROM events WHERE id = ?`, id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.ErrEventNotFound
		}
		return 0, storeError("get attendee count", err)
	}
	return n, nil
}

// IncrementLikes adds one like to the event and returns the new total.
func (r *EventRepo) IncrementLikes(ctx context.Context, id string) (int, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE events SET likes_count = likes_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, storeError("increment likes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("increment likes", err)
	}
	if n == 0 {
		return 0, apperr.ErrEventNotFound
	}
	var likes int
	if err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT likes_count FROM events WHERE id = ?`, id).Scan(&likes); err != nil {
		return 0, storeError("get likes", err)
	}
	return likes, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
