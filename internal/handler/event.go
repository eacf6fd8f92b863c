package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/service"
)

// EventManager is the event lifecycle surface the handlers call.
type EventManager interface {
	Create(ctx context.Context, ownerID string, in service.CreateEventInput) (*model.Event, error)
	Update(ctx context.Context, ownerID, eventID string, in service.UpdateEventInput) (*model.Event, error)
	Delete(ctx context.Context, ownerID, eventID string) error
	Like(ctx context.Context, identityID, eventID string) (int, error)
	Get(ctx context.Context, eventID string) (*model.Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
}

// EventHandler serves the event lifecycle endpoints. Create and update
// accept either JSON or a multipart form with an optional "image" file.
type EventHandler struct {
	events   EventManager
	clock    clock.Clock
	maxImage int64
}

// NewEventHandler constructs an EventHandler. maxImage bounds uploaded
// image size in bytes.
func NewEventHandler(events EventManager, clk clock.Clock, maxImage int64) *EventHandler {
	if events == nil {
		panic("nil event manager passed to NewEventHandler")
	}
	return &EventHandler{events: events, clock: clk, maxImage: maxImage}
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	in, err := parseCreate(c, h.maxImage)
	if err != nil {
		return err
	}
	ev, err := h.events.Create(c.Request().Context(), id.ID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toEventResponse(*ev, h.clock.Now()))
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	ev, err := h.events.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(*ev, h.clock.Now()))
}

// Update handles PUT /v1/events/:id. Only the owner may update.
func (h *EventHandler) Update(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	in, err := parseUpdate(c, h.maxImage)
	if err != nil {
		return err
	}
	ev, err := h.events.Update(c.Request().Context(), id.ID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventResponse(*ev, h.clock.Now()))
}

// Delete handles DELETE /v1/events/:id. Reservations on the event are
// removed with it.
func (h *EventHandler) Delete(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	if err := h.events.Delete(c.Request().Context(), id.ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Like handles POST /v1/events/:id/like.
func (h *EventHandler) Like(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	likes, err := h.events.Like(c.Request().Context(), id.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, likeResponse{EventID: c.Param("id"), LikesCount: likes})
}

// ListMine handles GET /v1/me/events.
func (h *EventHandler) ListMine(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	return h.list(c, id.ID)
}

// ListByOwner handles GET /v1/owners/:ownerId/events.
func (h *EventHandler) ListByOwner(c echo.Context) error {
	return h.list(c, c.Param("ownerId"))
}

func (h *EventHandler) list(c echo.Context, ownerID string) error {
	events, err := h.events.ListByOwner(c.Request().Context(), ownerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"events": toEventList(events, h.clock.Now()),
		"total":  len(events),
	})
}
