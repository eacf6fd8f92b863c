package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-reservation/internal/asset"
	"github.com/iliyamo/event-reservation/internal/auth"
	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/database/dbtest"
	"github.com/iliyamo/event-reservation/internal/handler"
	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/router"
	"github.com/iliyamo/event-reservation/internal/service"
)

const secret = "test-secret"

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFixed(now)
	tx := repository.NewTransactor(db)
	events := repository.NewEventRepo(db)
	reservations := repository.NewReservationRepo(db)
	assets := asset.NewMemoryStore("http://assets.test")

	eventSvc := service.NewEventService(tx, events, reservations, assets, service.WithClock(clk))
	resSvc := service.NewReservationService(tx, events, reservations, service.WithClock(clk))

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(zap.NewNop())
	router.Register(e, router.Deps{
		Health:       handler.Health(db),
		Events:       handler.NewEventHandler(eventSvc, clk, 1<<20),
		Reservations: handler.NewReservationHandler(resSvc, clk),
		Auth:         middleware.Authenticate(auth.NewJWTGate(secret)),
	})
	return e
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, sub, "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func do(t *testing.T, e *echo.Echo, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(bs)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createEvent(t *testing.T, e *echo.Echo, owner string, capacity any) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/events", bearer(t, owner), map[string]any{
		"title":        "Go Night",
		"location":     "Utrecht",
		"scheduled_at": now.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"capacity":     capacity,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func TestHealth(t *testing.T) {
	e := newServer(t)
	rec := do(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	e := newServer(t)

	rec := do(t, e, http.MethodPost, "/v1/events", "", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode(t, rec)["code"])

	rec = do(t, e, http.MethodGet, "/v1/me/reservations", "Bearer not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	e := newServer(t)
	id := createEvent(t, e, "owner", 2)

	rec := do(t, e, http.MethodGet, "/v1/events/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Go Night", body["title"])
	assert.EqualValues(t, 2, body["capacity"])
	assert.EqualValues(t, 2, body["available_slots"])
	assert.Equal(t, true, body["is_upcoming"])
	assert.Equal(t, false, body["is_full"])

	rec = do(t, e, http.MethodPut, "/v1/events/"+id, bearer(t, "intruder"), map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_authorized", decode(t, rec)["code"])

	rec = do(t, e, http.MethodPut, "/v1/events/"+id, bearer(t, "owner"), map[string]any{"title": "Go Night II", "unlimited_capacity": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "Go Night II", body["title"])
	assert.Nil(t, body["capacity"])

	rec = do(t, e, http.MethodGet, "/v1/me/events", bearer(t, "owner"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, e, http.MethodGet, "/v1/owners/owner/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, e, http.MethodDelete, "/v1/events/"+id, bearer(t, "owner"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, e, http.MethodGet, "/v1/events/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event_not_found", decode(t, rec)["code"])
}

func TestReservationFlowOverHTTP(t *testing.T) {
	e := newServer(t)
	id := createEvent(t, e, "owner", 1)
	path := "/v1/events/" + id + "/reservation"

	rec := do(t, e, http.MethodPost, path, bearer(t, "alice"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["reservation_id"])
	assert.EqualValues(t, 1, body["attendee_count"])

	rec = do(t, e, http.MethodPost, path, bearer(t, "alice"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_reserved", decode(t, rec)["code"])

	rec = do(t, e, http.MethodPost, path, bearer(t, "bob"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "event_full", decode(t, rec)["code"])

	rec = do(t, e, http.MethodPut, "/v1/events/"+id, bearer(t, "owner"), map[string]any{"capacity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec)["code"])

	rec = do(t, e, http.MethodGet, path, bearer(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["is_reserved"])

	rec = do(t, e, http.MethodGet, "/v1/events/"+id+"/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.EqualValues(t, 1, body["total_reservations"])
	assert.EqualValues(t, 0, body["available_slots"])

	rec = do(t, e, http.MethodGet, "/v1/events/"+id+"/attendees", bearer(t, "owner"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, e, http.MethodGet, "/v1/me/reservations", bearer(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, e, http.MethodDelete, path, bearer(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["attendee_count"])

	rec = do(t, e, http.MethodDelete, path, bearer(t, "alice"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "reservation_not_found", decode(t, rec)["code"])
}

func TestCreateEventRejectsBadInput(t *testing.T) {
	e := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, "owner"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/events", bearer(t, "owner"), map[string]any{"location": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "title is required")
}

func TestCreateEventWithImageUpload(t *testing.T) {
	e := newServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "Poster night"))
	require.NoError(t, w.WriteField("location", "Ghent"))
	require.NoError(t, w.WriteField("scheduled_at", now.Add(48*time.Hour).Format(time.RFC3339)))
	require.NoError(t, w.WriteField("capacity", "25"))
	part, err := w.CreateFormFile("image", "poster.gif")
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, bearer(t, "owner"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 25, body["capacity"])
	url, _ := body["image_url"].(string)
	assert.True(t, strings.HasPrefix(url, "http://assets.test/"), url)
	assert.True(t, strings.HasSuffix(url, ".gif"), url)
}

func multipartPut(t *testing.T, e *echo.Echo, path, token string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMultipartUpdateCapacityField(t *testing.T) {
	e := newServer(t)
	id := createEvent(t, e, "owner", 10)
	path := "/v1/events/" + id

	rec := multipartPut(t, e, path, bearer(t, "owner"), map[string]string{"title": "Renamed", "capacity": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Renamed", body["title"])
	assert.EqualValues(t, 10, body["capacity"])

	rec = multipartPut(t, e, path, bearer(t, "owner"), map[string]string{"capacity": "  "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 10, decode(t, rec)["capacity"])

	rec = multipartPut(t, e, path, bearer(t, "owner"), map[string]string{"capacity": "many"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = multipartPut(t, e, path, bearer(t, "owner"), map[string]string{"capacity": "unlimited"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode(t, rec)["capacity"])
}

func TestLikeEventOverHTTP(t *testing.T) {
	e := newServer(t)
	id := createEvent(t, e, "owner", nil)
	path := "/v1/events/" + id + "/like"

	rec := do(t, e, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, path, bearer(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, id, body["event_id"])
	assert.EqualValues(t, 1, body["likes_count"])

	rec = do(t, e, http.MethodPost, path, bearer(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["likes_count"])

	rec = do(t, e, http.MethodGet, "/v1/events/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["likes_count"])

	rec = do(t, e, http.MethodPost, "/v1/events/missing/like", bearer(t, "alice"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
