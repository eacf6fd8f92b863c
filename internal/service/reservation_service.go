package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
)

const timeLayout = time.RFC3339Nano

// EventStore is the persistence surface for events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetForUpdate(ctx context.Context, id string) (*model.Event, error)
	Update(ctx context.Context, e *model.Event) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	TryIncrementAttendees(ctx context.Context, id string, now time.Time) (bool, error)
	DecrementAttendees(ctx context.Context, id string) error
	AttendeeCount(ctx context.Context, id string) (int, error)
	IncrementLikes(ctx context.Context, id string) (int, error)
}

// ReservationStore is the persistence surface for reservations.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	Find(ctx context.Context, participantID, eventID string) (*model.Reservation, error)
	Delete(ctx context.Context, participantID, eventID string) (bool, error)
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)
	CountByDay(ctx context.Context, eventID string) ([]model.DailyCount, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Reservation, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.ParticipantReservation, error)
}

// ReservationService manages participant reservations on events. The
// attendee counter of an event only changes in the same transaction as the
// reservation row it mirrors.
type ReservationService struct {
	events       EventStore
	reservations ReservationStore
	runner       runner
	opts         options
}

// NewReservationService wires the reservation operations to their stores.
func NewReservationService(tx Transactor, events EventStore, reservations ReservationStore, opts ...Option) *ReservationService {
	o := buildOptions(opts)
	return &ReservationService{
		events:       events,
		reservations: reservations,
		runner:       runner{tx: tx, policy: o.retry, log: o.log},
		opts:         o,
	}
}

// Join reserves one slot of the event for the participant.
//
// The counter is taken first with a guarded increment so the row lock it
// acquires orders every competing join on the same event. When the guard
// rejects the increment the event is re-read to report EventNotFound,
// EventPast or EventFull. The reservation insert then relies on the unique
// (participant, event) index; a duplicate rolls the increment back.
func (s *ReservationService) Join(ctx context.Context, participantID, eventID string) (res model.JoinResult, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "reservation.join", trace.WithAttributes(
		attribute.String("event.id", eventID), attribute.String("participant.id", participantID)))
	defer func() { endSpan(span, err) }()

	err = s.runner.run(ctx, "join", func(ctx context.Context) error {
		now := s.opts.clock.Now()
		ok, err := s.events.TryIncrementAttendees(ctx, eventID, now)
		if err != nil {
			return err
		}
		if !ok {
			ev, err := s.events.GetByID(ctx, eventID)
			if err != nil {
				return err
			}
			if !ev.IsUpcoming(now) {
				return apperr.ErrEventPast
			}
			return apperr.ErrEventFull
		}

		existing, err := s.reservations.Find(ctx, participantID, eventID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.ErrAlreadyReserved
		}
		r := model.Reservation{
			ID:            uuid.NewString(),
			ParticipantID: participantID,
			EventID:       eventID,
			CreatedAt:     now,
		}
		if err := s.reservations.Create(ctx, &r); err != nil {
			return err
		}
		count, err := s.events.AttendeeCount(ctx, eventID)
		if err != nil {
			return err
		}
		res = model.JoinResult{ReservationID: r.ID, NewAttendeeCount: count}
		return nil
	})
	if err != nil {
		return model.JoinResult{}, err
	}

	s.opts.invalidate(ctx, eventID)
	s.opts.publishActivity(ctx, queue.ActivityMessage{
		Type:          queue.TypeReservationJoined,
		EventID:       eventID,
		ParticipantID: participantID,
		ReservationID: res.ReservationID,
		AttendeeCount: res.NewAttendeeCount,
	})
	return res, nil
}

// Leave releases the participant's slot. Leaving without a reservation is
// reported as ReservationNotFound. Leaving an event that already took
// place is allowed.
func (s *ReservationService) Leave(ctx context.Context, participantID, eventID string) (res model.LeaveResult, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "reservation.leave", trace.WithAttributes(
		attribute.String("event.id", eventID), attribute.String("participant.id", participantID)))
	defer func() { endSpan(span, err) }()

	err = s.runner.run(ctx, "leave", func(ctx context.Context) error {
		removed, err := s.reservations.Delete(ctx, participantID, eventID)
		if err != nil {
			return err
		}
		if !removed {
			if _, err := s.events.AttendeeCount(ctx, eventID); err != nil {
				return err
			}
			return apperr.ErrReservationNotFound
		}
		if err := s.events.DecrementAttendees(ctx, eventID); err != nil {
			return err
		}
		count, err := s.events.AttendeeCount(ctx, eventID)
		if err != nil {
			return err
		}
		res = model.LeaveResult{NewAttendeeCount: count}
		return nil
	})
	if err != nil {
		return model.LeaveResult{}, err
	}

	s.opts.invalidate(ctx, eventID)
	s.opts.publishActivity(ctx, queue.ActivityMessage{
		Type:          queue.TypeReservationLeft,
		EventID:       eventID,
		ParticipantID: participantID,
		AttendeeCount: res.NewAttendeeCount,
	})
	return res, nil
}

// Check reports whether the participant holds a reservation on the event.
func (s *ReservationService) Check(ctx context.Context, participantID, eventID string) (model.ReservationStatus, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return model.ReservationStatus{}, err
	}
	r, err := s.reservations.Find(ctx, participantID, eventID)
	if err != nil {
		return model.ReservationStatus{}, err
	}
	if r == nil {
		return model.ReservationStatus{}, nil
	}
	at := r.CreatedAt
	return model.ReservationStatus{IsReserved: true, ReservedAt: &at}, nil
}

// Stats aggregates the reservation figures of one event. The reads share a
// transaction so the counter and the row count come from the same snapshot.
func (s *ReservationService) Stats(ctx context.Context, eventID string) (stats model.EventStats, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "reservation.stats", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { endSpan(span, err) }()

	err = s.runner.run(ctx, "stats", func(ctx context.Context) error {
		ev, err := s.events.GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		total, err := s.reservations.CountByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		byDay, err := s.reservations.CountByDay(ctx, eventID)
		if err != nil {
			return err
		}
		stats = model.EventStats{
			EventID:            ev.ID,
			TotalReservations:  total,
			AttendeeCount:      ev.AttendeeCount,
			Capacity:           ev.Capacity,
			AvailableSlots:     ev.AvailableSlots(),
			ReservationsByDate: byDay,
		}
		return nil
	})
	if err != nil {
		return model.EventStats{}, err
	}
	return stats, nil
}

// ListByParticipant returns the participant's reservations with their
// events, newest first.
func (s *ReservationService) ListByParticipant(ctx context.Context, participantID string) ([]model.ParticipantReservation, error) {
	return s.reservations.ListByParticipant(ctx, participantID)
}

// ListAttendees returns the reservations of an event, newest first.
func (s *ReservationService) ListAttendees(ctx context.Context, eventID string) ([]model.Reservation, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.reservations.ListByEvent(ctx, eventID)
}
