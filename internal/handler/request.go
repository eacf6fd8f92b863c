package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/asset"
	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/service"
)

// createEventRequest is the JSON body of POST /v1/events. A missing or null
// capacity means unlimited.
type createEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Capacity    *int      `json:"capacity"`
}

// updateEventRequest is the JSON body of PUT /v1/events/:id. Absent fields
// are left unchanged.
type updateEventRequest struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	Location          *string    `json:"location"`
	ScheduledAt       *time.Time `json:"scheduled_at"`
	Capacity          *int       `json:"capacity"`
	UnlimitedCapacity bool       `json:"unlimited_capacity"`
}

func identity(c echo.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.Identity{}, apperr.ErrUnauthenticated
	}
	return id, nil
}

func isMultipart(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm)
}

func parseCreate(c echo.Context, maxImage int64) (service.CreateEventInput, error) {
	if !isMultipart(c) {
		var req createEventRequest
		if err := c.Bind(&req); err != nil {
			return service.CreateEventInput{}, apperr.Invalid("invalid request body")
		}
		return service.CreateEventInput{
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			ScheduledAt: req.ScheduledAt,
			Capacity:    req.Capacity,
		}, nil
	}

	in := service.CreateEventInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Location:    c.FormValue("location"),
	}
	if v := c.FormValue("scheduled_at"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return in, err
		}
		in.ScheduledAt = t
	}
	if v := strings.TrimSpace(c.FormValue("capacity")); v != "" && v != "unlimited" {
		n, err := parseCapacity(v)
		if err != nil {
			return in, err
		}
		in.Capacity = &n
	}
	img, err := readImage(c, maxImage)
	if err != nil {
		return in, err
	}
	in.Image = img
	return in, nil
}

func parseUpdate(c echo.Context, maxImage int64) (service.UpdateEventInput, error) {
	if !isMultipart(c) {
		var req updateEventRequest
		if err := c.Bind(&req); err != nil {
			return service.UpdateEventInput{}, apperr.Invalid("invalid request body")
		}
		return service.UpdateEventInput{
			Title:             req.Title,
			Description:       req.Description,
			Location:          req.Location,
			ScheduledAt:       req.ScheduledAt,
			Capacity:          req.Capacity,
			UnlimitedCapacity: req.UnlimitedCapacity,
		}, nil
	}

	var in service.UpdateEventInput
	form, err := c.FormParams()
	if err != nil {
		return in, apperr.Invalid("invalid form body")
	}
	optional := func(name string) *string {
		if _, ok := form[name]; !ok {
			return nil
		}
		v := form.Get(name)
		return &v
	}
	in.Title = optional("title")
	in.Description = optional("description")
	in.Location = optional("location")
	if v := optional("scheduled_at"); v != nil {
		t, err := parseTime(*v)
		if err != nil {
			return in, err
		}
		in.ScheduledAt = &t
	}
	if v := optional("capacity"); v != nil {
		// An empty field leaves the capacity unchanged.
		switch s := strings.TrimSpace(*v); s {
		case "":
		case "unlimited":
			in.UnlimitedCapacity = true
		default:
			n, err := parseCapacity(s)
			if err != nil {
				return in, err
			}
			in.Capacity = &n
		}
	}
	img, err := readImage(c, maxImage)
	if err != nil {
		return in, err
	}
	in.Image = img
	return in, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, apperr.Invalid("scheduled_at must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseCapacity(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid("capacity must be a positive integer or \"unlimited\"")
	}
	return n, nil
}

// readImage returns the optional "image" file of a multipart request.
func readImage(c echo.Context, limit int64) (*asset.Blob, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperr.Invalid("invalid image upload")
	}
	if limit > 0 && fh.Size > limit {
		return nil, apperr.Invalid("image exceeds %d bytes", limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Invalid("invalid image upload")
	}
	defer f.Close()
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, apperr.Invalid("image exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, apperr.Invalid("image is empty")
	}
	return &asset.Blob{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}
