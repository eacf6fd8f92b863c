package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/model"
)

// ReservationManager is the reservation surface the handlers call.
type ReservationManager interface {
	Join(ctx context.Context, participantID, eventID string) (model.JoinResult, error)
	Leave(ctx context.Context, participantID, eventID string) (model.LeaveResult, error)
	Check(ctx context.Context, participantID, eventID string) (model.ReservationStatus, error)
	Stats(ctx context.Context, eventID string) (model.EventStats, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.ParticipantReservation, error)
	ListAttendees(ctx context.Context, eventID string) ([]model.Reservation, error)
}

// ReservationHandler serves join, leave and the reservation reads. All
// methods except Stats expect Authenticate to have run.
type ReservationHandler struct {
	reservations ReservationManager
	clock        clock.Clock
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(reservations ReservationManager, clk clock.Clock) *ReservationHandler {
	if reservations == nil {
		panic("nil reservation manager passed to NewReservationHandler")
	}
	return &ReservationHandler{reservations: reservations, clock: clk}
}

// Join handles POST /v1/events/:id/reservation.
func (h *ReservationHandler) Join(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	res, err := h.reservations.Join(c.Request().Context(), id.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, joinResponse{ReservationID: res.ReservationID, AttendeeCount: res.NewAttendeeCount})
}

// Leave handles DELETE /v1/events/:id/reservation.
func (h *ReservationHandler) Leave(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	res, err := h.reservations.Leave(c.Request().Context(), id.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, leaveResponse{AttendeeCount: res.NewAttendeeCount})
}

// Check handles GET /v1/events/:id/reservation.
func (h *ReservationHandler) Check(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	st, err := h.reservations.Check(c.Request().Context(), id.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{IsReserved: st.IsReserved, ReservedAt: st.ReservedAt})
}

// Stats handles GET /v1/events/:id/stats.
func (h *ReservationHandler) Stats(c echo.Context) error {
	st, err := h.reservations.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatsResponse(st))
}

// Attendees handles GET /v1/events/:id/attendees.
func (h *ReservationHandler) Attendees(c echo.Context) error {
	list, err := h.reservations.ListAttendees(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	out := make([]attendeeResponse, 0, len(list))
	for _, r := range list {
		out = append(out, attendeeResponse{ReservationID: r.ID, ParticipantID: r.ParticipantID, ReservedAt: r.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"attendees": out, "total": len(out)})
}

// ListMine handles GET /v1/me/reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	list, err := h.reservations.ListByParticipant(c.Request().Context(), id.ID)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	out := make([]participantReservationResponse, 0, len(list))
	for _, pr := range list {
		out = append(out, participantReservationResponse{
			ID:         pr.Reservation.ID,
			EventID:    pr.Reservation.EventID,
			ReservedAt: pr.Reservation.CreatedAt,
			Event:      toEventResponse(pr.Event, now),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out, "total": len(out)})
}
