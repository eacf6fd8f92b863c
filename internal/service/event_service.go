package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/asset"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
)

// CreateEventInput carries the fields of a new event. A nil Capacity means
// unlimited.
type CreateEventInput struct {
	Title       string
	Description string
	Location    string
	ScheduledAt time.Time
	Capacity    *int
	Image       *asset.Blob
}

// UpdateEventInput carries a partial update. Nil fields are left unchanged.
// UnlimitedCapacity removes the capacity limit and cannot be combined with
// Capacity.
type UpdateEventInput struct {
	Title             *string
	Description       *string
	Location          *string
	ScheduledAt       *time.Time
	Capacity          *int
	UnlimitedCapacity bool
	Image             *asset.Blob
}

// EventService creates, updates and deletes events on behalf of their
// owners.
type EventService struct {
	events       EventStore
	reservations ReservationStore
	assets       asset.Store
	runner       runner
	opts         options
}

// NewEventService wires the lifecycle operations to their stores.
func NewEventService(tx Transactor, events EventStore, reservations ReservationStore, assets asset.Store, opts ...Option) *EventService {
	o := buildOptions(opts)
	return &EventService{
		events:       events,
		reservations: reservations,
		assets:       assets,
		runner:       runner{tx: tx, policy: o.retry, log: o.log},
		opts:         o,
	}
}

// Create validates in, uploads the optional image and inserts the event.
// An upload failure fails the whole call; an insert failure discards the
// uploaded image.
func (s *EventService) Create(ctx context.Context, ownerID string, in CreateEventInput) (ev *model.Event, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "event.create", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer func() { endSpan(span, err) }()

	fields := eventFields{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		ScheduledAt: in.ScheduledAt,
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	if err := validateCapacity(in.Capacity); err != nil {
		return nil, err
	}

	var imageRef *string
	if in.Image != nil {
		ref, err := s.upload(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		imageRef = &ref
	}

	now := s.opts.clock.Now()
	e := &model.Event{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       fields.Title,
		Description: fields.Description,
		Location:    fields.Location,
		ScheduledAt: fields.ScheduledAt.UTC(),
		Capacity:    in.Capacity,
		ImageRef:    imageRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.runner.run(ctx, "create_event", func(ctx context.Context) error {
		return s.events.Create(ctx, e)
	})
	if err != nil {
		if imageRef != nil {
			s.discardAsset(ctx, *imageRef, e.ID)
		}
		return nil, err
	}
	return e, nil
}

// Update applies in to the owner's event. A replaced image is deleted after
// commit on a best-effort basis; if the transaction fails the freshly
// uploaded image is discarded instead.
func (s *EventService) Update(ctx context.Context, ownerID, eventID string, in UpdateEventInput) (ev *model.Event, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "event.update", trace.WithAttributes(
		attribute.String("event.id", eventID), attribute.String("owner.id", ownerID)))
	defer func() { endSpan(span, err) }()

	if in.UnlimitedCapacity && in.Capacity != nil {
		return nil, apperr.Invalid("capacity and unlimited capacity are mutually exclusive")
	}
	if err := validateCapacity(in.Capacity); err != nil {
		return nil, err
	}

	// Reject strangers before uploading anything on their behalf. The
	// check is repeated under the row lock below.
	current, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !current.IsOwnedBy(ownerID) {
		return nil, apperr.ErrNotAuthorized
	}

	var newRef *string
	if in.Image != nil {
		ref, err := s.upload(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		newRef = &ref
	}

	var oldRef *string
	err = s.runner.run(ctx, "update_event", func(ctx context.Context) error {
		e, err := s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !e.IsOwnedBy(ownerID) {
			return apperr.ErrNotAuthorized
		}
		oldRef = e.ImageRef

		next := *e
		applyUpdate(&next, in)
		if err := validateFields(eventFields{
			Title:       next.Title,
			Description: next.Description,
			Location:    next.Location,
			ScheduledAt: next.ScheduledAt,
		}); err != nil {
			return err
		}
		if next.Capacity != nil && *next.Capacity < e.AttendeeCount {
			return apperr.ErrCapacityBelowAttendance
		}
		if newRef != nil {
			next.ImageRef = newRef
		}
		next.UpdatedAt = s.opts.clock.Now()
		if err := s.events.Update(ctx, &next); err != nil {
			return err
		}
		ev = &next
		return nil
	})
	if err != nil {
		if newRef != nil {
			s.discardAsset(ctx, *newRef, eventID)
		}
		return nil, err
	}

	if newRef != nil && oldRef != nil && *oldRef != *newRef {
		s.releaseAsset(ctx, *oldRef, eventID, "image replaced")
	}
	s.opts.invalidate(ctx, eventID)
	return ev, nil
}

// Delete removes the owner's event together with every reservation on it.
// The image is deleted after commit; a failed deletion is queued for
// cleanup and does not fail the call.
func (s *EventService) Delete(ctx context.Context, ownerID, eventID string) (err error) {
	ctx, span := s.opts.tracer.Start(ctx, "event.delete", trace.WithAttributes(
		attribute.String("event.id", eventID), attribute.String("owner.id", ownerID)))
	defer func() { endSpan(span, err) }()

	var imageRef *string
	var removed int64
	err = s.runner.run(ctx, "delete_event", func(ctx context.Context) error {
		e, err := s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !e.IsOwnedBy(ownerID) {
			return apperr.ErrNotAuthorized
		}
		imageRef = e.ImageRef
		if removed, err = s.reservations.DeleteByEvent(ctx, eventID); err != nil {
			return err
		}
		return s.events.Delete(ctx, eventID)
	})
	if err != nil {
		return err
	}

	if imageRef != nil {
		s.releaseAsset(ctx, *imageRef, eventID, "event deleted")
	}
	s.opts.invalidate(ctx, eventID)
	s.opts.publishActivity(ctx, queue.ActivityMessage{
		Type:                queue.TypeEventDeleted,
		EventID:             eventID,
		ActorID:             ownerID,
		RemovedReservations: int(removed),
	})
	return nil
}

// Like adds one like from identityID to the event and returns the new
// total. Likes are a plain counter; repeated likes all count.
func (s *EventService) Like(ctx context.Context, identityID, eventID string) (likes int, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "event.like", trace.WithAttributes(
		attribute.String("event.id", eventID), attribute.String("identity.id", identityID)))
	defer func() { endSpan(span, err) }()

	err = s.runner.run(ctx, "like_event", func(ctx context.Context) error {
		n, err := s.events.IncrementLikes(ctx, eventID)
		if err != nil {
			return err
		}
		likes = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.opts.invalidate(ctx, eventID)
	s.opts.publishActivity(ctx, queue.ActivityMessage{
		Type:       queue.TypeEventLiked,
		EventID:    eventID,
		ActorID:    identityID,
		LikesCount: likes,
	})
	return likes, nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, eventID string) (*model.Event, error) {
	return s.events.GetByID(ctx, eventID)
}

// ListByOwner returns the owner's events, newest first.
func (s *EventService) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	return s.events.ListByOwner(ctx, ownerID)
}

func applyUpdate(e *model.Event, in UpdateEventInput) {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.Location != nil {
		e.Location = strings.TrimSpace(*in.Location)
	}
	if in.ScheduledAt != nil {
		e.ScheduledAt = in.ScheduledAt.UTC()
	}
	switch {
	case in.UnlimitedCapacity:
		e.Capacity = nil
	case in.Capacity != nil:
		c := *in.Capacity
		e.Capacity = &c
	}
}

func (s *EventService) upload(ctx context.Context, blob asset.Blob) (string, error) {
	ref, err := s.assets.Put(ctx, blob)
	if err != nil {
		if errors.Is(err, asset.ErrUnsupportedType) {
			return "", apperr.Invalid("image must be a jpeg, png, gif or webp file")
		}
		return "", apperr.With(apperr.ErrAssetUpload, err)
	}
	return ref, nil
}

// discardAsset removes an image uploaded for a write that did not commit.
func (s *EventService) discardAsset(ctx context.Context, ref, eventID string) {
	s.releaseAsset(ctx, ref, eventID, "write aborted")
}

// releaseAsset deletes ref and queues it for cleanup when that fails.
func (s *EventService) releaseAsset(ctx context.Context, ref, eventID, reason string) {
	ctx = context.WithoutCancel(ctx)
	err := s.assets.Delete(ctx, ref)
	if err == nil || errors.Is(err, asset.ErrNotFound) {
		return
	}
	s.opts.log.Warn("asset delete failed",
		zap.String("event_id", eventID), zap.String("asset_ref", ref), zap.String("reason", reason), zap.Error(err))
	if s.opts.notify == nil {
		return
	}
	msg := queue.AssetCleanupMessage{
		Ref:      ref,
		EventID:  eventID,
		Reason:   reason,
		FailedAt: s.opts.clock.Now().Format(timeLayout),
	}
	if err := s.opts.notify.PublishAssetCleanup(ctx, msg); err != nil {
		s.opts.log.Error("queue asset cleanup failed",
			zap.String("event_id", eventID), zap.String("asset_ref", ref), zap.Error(err))
	}
}
