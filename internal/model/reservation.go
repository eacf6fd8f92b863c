package model

import "time"

// Reservation is a participant's confirmed claim on one slot of one event.
// At most one row exists per (ParticipantID, EventID); rows are never
// updated in place, only inserted on join and deleted on leave or when the
// event is removed.
//
// Fields:
//  ID            – opaque identifier (UUID).
//  ParticipantID – identity holding the slot.
//  EventID       – event the slot belongs to.
//  CreatedAt     – when the reservation was confirmed.
type Reservation struct {
	ID            string    // reservations.id
	ParticipantID string    // reservations.participant_id
	EventID       string    // reservations.event_id
	CreatedAt     time.Time // reservations.created_at (unix ms)
}

// ParticipantReservation pairs a reservation with the event it targets.
// It is returned when listing a participant's reservations.
type ParticipantReservation struct {
	Reservation Reservation
	Event       Event
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	ReservationID    string
	NewAttendeeCount int
}

// LeaveResult is returned by a successful leave.
type LeaveResult struct {
	NewAttendeeCount int
}

// ReservationStatus answers whether a participant holds a slot.
type ReservationStatus struct {
	IsReserved bool
	ReservedAt *time.Time
}

// DailyCount is the number of reservations created on one UTC day.
type DailyCount struct {
	Date  string // YYYY-MM-DD
	Count int
}

// EventStats aggregates reservation figures for one event.
// AvailableSlots is nil when the event has unlimited capacity.
type EventStats struct {
	EventID            string
	TotalReservations  int
	AttendeeCount      int
	Capacity           *int
	AvailableSlots     *int
	ReservationsByDate []DailyCount
}
