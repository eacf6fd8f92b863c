package handler

import (
	"time"

	"github.com/iliyamo/event-reservation/internal/model"
)

type eventResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Capacity       *int      `json:"capacity"`
	AttendeeCount  int       `json:"attendee_count"`
	AvailableSlots *int      `json:"available_slots"`
	LikesCount     int       `json:"likes_count"`
	IsFull         bool      `json:"is_full"`
	IsUpcoming     bool      `json:"is_upcoming"`
	ImageURL       *string   `json:"image_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toEventResponse(e model.Event, now time.Time) eventResponse {
	return eventResponse{
		ID:             e.ID,
		OwnerID:        e.OwnerID,
		Title:          e.Title,
		Description:    e.Description,
		Location:       e.Location,
		ScheduledAt:    e.ScheduledAt,
		Capacity:       e.Capacity,
		AttendeeCount:  e.AttendeeCount,
		AvailableSlots: e.AvailableSlots(),
		LikesCount:     e.LikesCount,
		IsFull:         e.IsFull(),
		IsUpcoming:     e.IsUpcoming(now),
		ImageURL:       e.ImageRef,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toEventList(events []model.Event, now time.Time) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e, now))
	}
	return out
}

type likeResponse struct {
	EventID    string `json:"event_id"`
	LikesCount int    `json:"likes_count"`
}

type joinResponse struct {
	ReservationID string `json:"reservation_id"`
	AttendeeCount int    `json:"attendee_count"`
}

type leaveResponse struct {
	AttendeeCount int `json:"attendee_count"`
}

type statusResponse struct {
	IsReserved bool       `json:"is_reserved"`
	ReservedAt *time.Time `json:"reserved_at"`
}

type dailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type statsResponse struct {
	EventID            string       `json:"event_id"`
	TotalReservations  int          `json:"total_reservations"`
	AttendeeCount      int          `json:"attendee_count"`
	Capacity           *int         `json:"capacity"`
	AvailableSlots     *int         `json:"available_slots"`
	ReservationsByDate []dailyCount `json:"reservations_by_date"`
}

func toStatsResponse(s model.EventStats) statsResponse {
	byDate := make([]dailyCount, 0, len(s.ReservationsByDate))
	for _, d := range s.ReservationsByDate {
		byDate = append(byDate, dailyCount{Date: d.Date, Count: d.Count})
	}
	return statsResponse{
		EventID:            s.EventID,
		TotalReservations:  s.TotalReservations,
		AttendeeCount:      s.AttendeeCount,
		Capacity:           s.Capacity,
		AvailableSlots:     s.AvailableSlots,
		ReservationsByDate: byDate,
	}
}

type attendeeResponse struct {
	ReservationID string    `json:"reservation_id"`
	ParticipantID string    `json:"participant_id"`
	ReservedAt    time.Time `json:"reserved_at"`
}

type participantReservationResponse struct {
	ID         string        `json:"id"`
	EventID    string        `json:"event_id"`
	ReservedAt time.Time     `json:"reserved_at"`
	Event      eventResponse `json:"event"`
}
