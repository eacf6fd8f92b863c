package model

import "time"

// Event represents a capacity-limited gathering published by an owner.
// AttendeeCount is a cached projection of the reservations table and is
// only changed in the same transaction as the reservation row it mirrors.
//
// Fields:
//  ID            – opaque identifier (UUID).
//  OwnerID       – identity of the organizer who created the event.
//  Title         – short display title.
//  Description   – optional free text.
//  Location      – where the event takes place.
//  ScheduledAt   – when the event starts (UTC).
//  Capacity      – maximum confirmed reservations; nil means unlimited.
//  AttendeeCount – live number of reservations.
//  ImageRef      – durable URL returned by the asset store (nil if none).
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
//  LikesCount    – number of likes received.
type Event struct {
	ID            string    // events.id
	OwnerID       string    // events.owner_id
	Title         string    // events.title
	Description   string    // events.description
	Location      string    // events.location
	ScheduledAt   time.Time // events.scheduled_at (unix ms)
	Capacity      *int      // events.capacity (nullable)
	AttendeeCount int       // events.attendee_count
	ImageRef      *string   // events.image_ref (nullable)
	CreatedAt     time.Time // events.created_at (unix ms)
	UpdatedAt     time.Time // events.updated_at (unix ms)
	LikesCount    int       // events.likes_count
}

// IsFull reports whether every slot is taken. Unlimited events are never full.
func (e Event) IsFull() bool {
	return e.Capacity != nil && e.AttendeeCount >= *e.Capacity
}

// IsUpcoming reports whether the event starts after now.
func (e Event) IsUpcoming(now time.Time) bool {
	return e.ScheduledAt.After(now)
}

// AvailableSlots returns capacity minus attendees, or nil when unlimited.
func (e Event) AvailableSlots() *int {
	if e.Capacity == nil {
		return nil
	}
	n := *e.Capacity - e.AttendeeCount
	if n < 0 {
		n = 0
	}
	return &n
}

// IsOwnedBy reports whether identityID created the event.
func (e Event) IsOwnedBy(identityID string) bool {
	return identityID != "" && e.OwnerID == identityID
}
