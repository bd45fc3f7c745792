package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/http/middleware"
	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/service/reminders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addCall struct {
	inv      reminders.Invocation
	duration string
	message  *string
	loc      model.Location
	until    *time.Time
}

type fakeReminders struct {
	adds    []addCall
	addErr  error
	page    reminders.Page
	listed  []int
	removed []uint64
	rmErr   error
}

func (f *fakeReminders) AddSingle(_ context.Context, inv reminders.Invocation, when string, message *string, loc model.Location) (model.Reminder, error) {
	f.adds = append(f.adds, addCall{inv: inv, duration: when, message: message, loc: loc})
	if f.addErr != nil {
		return model.Reminder{}, f.addErr
	}
	return model.Reminder{ID: 100, UserID: inv.UserID, Message: message, Location: loc, NextTrigger: time.Unix(1709294400, 0)}, nil
}

func (f *fakeReminders) AddRecurring(_ context.Context, inv reminders.Invocation, interval string, message *string, loc model.Location, until *time.Time) (model.Reminder, error) {
	f.adds = append(f.adds, addCall{inv: inv, duration: interval, message: message, loc: loc, until: until})
	if f.addErr != nil {
		return model.Reminder{}, f.addErr
	}
	secs := int64(3600)
	return model.Reminder{ID: 101, UserID: inv.UserID, IsRepeating: true, FrequencySeconds: &secs, UntilDate: until, Location: loc}, nil
}

func (f *fakeReminders) List(_ context.Context, _ uint64, pageIndex int) (reminders.Page, error) {
	f.listed = append(f.listed, pageIndex)
	return f.page, nil
}

func (f *fakeReminders) Remove(_ context.Context, _ uint64, reminderID uint64) error {
	f.removed = append(f.removed, reminderID)
	return f.rmErr
}

type fakeMaintenance struct{ on bool }

func (f *fakeMaintenance) IsEnabled(context.Context) (bool, error) { return f.on, nil }

func (f *fakeMaintenance) SetMode(_ context.Context, enabled bool) (bool, error) {
	changed := f.on != enabled
	f.on = enabled
	return changed, nil
}

type fixture struct {
	srv   *Server
	rems  *fakeReminders
	maint *fakeMaintenance
}

func newFixture() *fixture {
	cfg := config.Config{
		HTTP: config.HTTPConfig{GatewayToken: "s3cret"},
		Dev:  config.DevConfig{UserIDs: []uint64{42}},
	}
	f := &fixture{rems: &fakeReminders{}, maint: &fakeMaintenance{}}
	f.srv = NewServer(cfg, Deps{Reminders: f.rems, Maintenance: f.maint})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body, user string, guild bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderGatewayToken, "s3cret")
	req.Header.Set(middleware.HeaderUserID, user)
	if guild {
		req.Header.Set(middleware.HeaderServerID, "100")
		req.Header.Set(middleware.HeaderChannelID, "200")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAddSingle(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/v1/interactions/reminders/single",
		`{"when":"10m","message":"water the plants","location":"channel"}`, "7", true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, f.rems.adds, 1)
	call := f.rems.adds[0]
	assert.Equal(t, uint64(7), call.inv.UserID)
	assert.Equal(t, uint64(100), *call.inv.ServerID)
	assert.Equal(t, "10m", call.duration)
	assert.Equal(t, model.LocationChannel, call.loc)

	body := decode(t, rec)
	assert.Equal(t, "100", body["id"])
	assert.Equal(t, "channel", body["location"])
	assert.EqualValues(t, 1709294400, body["next_trigger"])
}

func TestAddSingle_BadPayload(t *testing.T) {
	f := newFixture()

	for _, body := range []string{`{"message":"x"}`, `{"when":"1m","location":"thread"}`, `not json`} {
		rec := f.do(t, http.MethodPost, "/v1/interactions/reminders/single", body, "7", false)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, f.rems.adds)
}

func TestAddSingle_ValidationError(t *testing.T) {
	f := newFixture()
	f.rems.addErr = &reminders.ValidationError{Code: reminders.CodeTooManyReminders, Message: "too many"}

	rec := f.do(t, http.MethodPost, "/v1/interactions/reminders/single", `{"when":"10m"}`, "7", false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, reminders.CodeTooManyReminders, decode(t, rec)["error"])
}

func TestAddRecurring(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/v1/interactions/reminders/recurring",
		`{"interval":"1h","until":"2024-04-01"}`, "7", false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, f.rems.adds, 1)
	require.NotNil(t, f.rems.adds[0].until)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), *f.rems.adds[0].until)
	assert.Equal(t, model.LocationDirectMessage, f.rems.adds[0].loc)

	body := decode(t, rec)
	assert.Equal(t, true, body["is_repeating"])
	assert.EqualValues(t, 3600, body["frequency_seconds"])
	assert.Equal(t, "2024-04-01", body["until_date"])

	rec = f.do(t, http.MethodPost, "/v1/interactions/reminders/recurring", `{"interval":"1h","until":"April"}`, "7", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReminders(t *testing.T) {
	f := newFixture()
	f.rems.page = reminders.Page{
		Items:     []model.Reminder{{ID: 4}, {ID: 5}},
		PageIndex: 1, PageCount: 2, Total: 5,
	}

	rec := f.do(t, http.MethodGet, "/v1/interactions/reminders?page=1", "", "7", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1}, f.rems.listed)

	body := decode(t, rec)
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 2, body["page_count"])
	assert.EqualValues(t, 5, body["total"])
	assert.Len(t, body["results"], 2)

	f.do(t, http.MethodGet, "/v1/interactions/reminders?page=abc", "", "7", false)
	assert.Equal(t, []int{1, 0}, f.rems.listed)
}

func TestRemoveReminder(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodDelete, "/v1/interactions/reminders/12", "", "7", false)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uint64{12}, f.rems.removed)

	f.rems.rmErr = reminders.ErrReminderNotFound
	rec = f.do(t, http.MethodDelete, "/v1/interactions/reminders/13", "", "7", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/interactions/reminders/x", "", "7", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaintenanceMode(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPut, "/v1/interactions/dev/maintenance", `{"enabled":true}`, "7", false)
	assert.Equal(t, http.StatusForbidden, rec.Code, "only developers")

	rec = f.do(t, http.MethodPut, "/v1/interactions/dev/maintenance", `{}`, "42", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/v1/interactions/dev/maintenance", `{"enabled":true}`, "42", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["changed"])

	rec = f.do(t, http.MethodGet, "/v1/interactions/reminders", "", "7", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.rems.listed)

	rec = f.do(t, http.MethodPut, "/v1/interactions/dev/maintenance", `{"enabled":false}`, "42", false)
	require.Equal(t, http.StatusOK, rec.Code, "dev routes are served during maintenance")

	rec = f.do(t, http.MethodGet, "/v1/interactions/reminders", "", "7", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/v1/interactions/reminders", nil)
	req.Header.Set(middleware.HeaderUserID, "7")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
