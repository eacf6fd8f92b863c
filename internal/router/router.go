// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/handler"
)

// Deps groups what the routes need. Auth is required; a nil Cache or
// RateLimit leaves the routes unwrapped.
type Deps struct {
	Health       echo.HandlerFunc
	Events       *handler.EventHandler
	Reservations *handler.ReservationHandler
	Auth         echo.MiddlewareFunc
	Cache        echo.MiddlewareFunc
	RateLimit    echo.MiddlewareFunc
}

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	if d.Auth == nil {
		panic("router: nil auth middleware")
	}
	d = d.withDefaults()
	e.GET("/healthz", d.Health)
	RegisterPublic(e, d)
	RegisterAuthenticated(e, d)
}

// RegisterPublic mounts the read-only routes that need no identity. Event
// and stats reads go through the response cache.
func RegisterPublic(e *echo.Echo, d Deps) {
	e.GET("/v1/events/:id", d.Events.Get, d.Cache)
	e.GET("/v1/events/:id/stats", d.Reservations.Stats, d.Cache)
	e.GET("/v1/owners/:ownerId/events", d.Events.ListByOwner)
}

// RegisterAuthenticated mounts the routes that act on behalf of the
// resolved identity. Join, leave and like are rate limited per identity.
func RegisterAuthenticated(e *echo.Echo, d Deps) {
	g := e.Group("/v1", d.Auth)

	g.POST("/events", d.Events.Create)
	g.PUT("/events/:id", d.Events.Update)
	g.DELETE("/events/:id", d.Events.Delete)
	g.POST("/events/:id/like", d.Events.Like, d.RateLimit)
	g.GET("/me/events", d.Events.ListMine)

	g.GET("/events/:id/attendees", d.Reservations.Attendees)
	g.POST("/events/:id/reservation", d.Reservations.Join, d.RateLimit)
	g.DELETE("/events/:id/reservation", d.Reservations.Leave, d.RateLimit)
	g.GET("/events/:id/reservation", d.Reservations.Check)
	g.GET("/me/reservations", d.Reservations.ListMine)
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = noop
	}
	if d.RateLimit == nil {
		d.RateLimit = noop
	}
	return d
}

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }
