package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-admin/internal/apiserver/apitest"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/model"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*apitest.Env, *Gateway, *httptest.Server) {
	t.Helper()
	e := apitest.New(t)
	g := NewGateway(e.Events, e.Authn)
	g.RegisterRoutes(e.Mux)
	srv := httptest.NewServer(e.Handler)
	t.Cleanup(srv.Close)
	return e, g, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m wsMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func readEvent(t *testing.T, conn *websocket.Conn) eventbus.Event {
	t.Helper()
	m := read(t, conn)
	require.Equal(t, "event", m.Type)
	var ev eventbus.Event
	require.NoError(t, json.Unmarshal(m.Data, &ev))
	return ev
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	_, _, srv := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBlockedUserRejected(t *testing.T) {
	e, _, srv := setup(t)
	u := e.User(t, "blocked@example.com", model.RoleTenant, model.UserStatusBlocked)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications?token=" + e.Token(t, u)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeliversOnlyRelevantEvents(t *testing.T) {
	e, g, srv := setup(t)
	tenant := e.User(t, "tenant@example.com", model.RoleTenant, model.UserStatusApproved)
	other := e.User(t, "other@example.com", model.RoleTenant, model.UserStatusApproved)

	conn := dial(t, srv, "token="+e.Token(t, tenant))
	hello := read(t, conn)
	assert.Equal(t, "connected", hello.Type)
	assert.Contains(t, string(hello.Data), tenant.ID)
	assert.Equal(t, 1, g.ClientCount())

	ctx := context.Background()
	require.NoError(t, e.Events.Publish(ctx, &eventbus.Event{Type: eventbus.EventApplicationReviewed, Audience: []string{other.ID}}))
	require.NoError(t, e.Events.Publish(ctx, &eventbus.Event{
		Type:     eventbus.EventApplicationReviewed,
		Audience: []string{tenant.ID},
		Data:     map[string]any{"status": "approved"},
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, eventbus.EventApplicationReviewed, ev.Type)
	assert.Equal(t, []string{tenant.ID}, ev.Audience)
	assert.Equal(t, "approved", ev.Data["status"])
}

func TestStaffReceivesAllEvents(t *testing.T) {
	e, _, srv := setup(t)
	staff := e.User(t, "staff@example.com", model.RoleStaff, model.UserStatusApproved)

	conn := dial(t, srv, "token="+e.Token(t, staff))
	read(t, conn)

	require.NoError(t, e.Events.Publish(context.Background(), &eventbus.Event{Type: eventbus.EventApartmentRented, Audience: []string{"usr-someone"}}))
	assert.Equal(t, eventbus.EventApartmentRented, readEvent(t, conn).Type)
}

func TestReplayAndPing(t *testing.T) {
	e, _, srv := setup(t)
	u := e.User(t, "owner@example.com", model.RoleOwner, model.UserStatusApproved)
	ctx := context.Background()
	require.NoError(t, e.Events.Publish(ctx, &eventbus.Event{ID: "e1", Type: eventbus.EventApplicationCreated, Audience: []string{u.ID}}))
	require.NoError(t, e.Events.Publish(ctx, &eventbus.Event{ID: "e2", Type: eventbus.EventApplicationCreated, Audience: []string{"usr-else"}}))
	require.NoError(t, e.Events.Publish(ctx, &eventbus.Event{ID: "e3", Type: eventbus.EventApplicationWithdrawn, Audience: []string{u.ID}}))

	conn := dial(t, srv, "recent=10&token="+e.Token(t, u))
	read(t, conn)
	assert.Equal(t, "e1", readEvent(t, conn).ID)
	assert.Equal(t, "e3", readEvent(t, conn).ID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)
}

func TestClientDisconnectCleansUp(t *testing.T) {
	e, g, srv := setup(t)
	u := e.User(t, "tenant@example.com", model.RoleTenant, model.UserStatusApproved)

	conn := dial(t, srv, "token="+e.Token(t, u))
	read(t, conn)
	require.Equal(t, 1, g.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return g.ClientCount() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestVisible(t *testing.T) {
	ev := &eventbus.Event{Audience: []string{"usr-1"}}
	assert.True(t, Visible(ev, &model.User{ID: "usr-1", Roles: []model.Role{model.RoleTenant}}))
	assert.False(t, Visible(ev, &model.User{ID: "usr-2", Roles: []model.Role{model.RoleTenant}}))
	assert.True(t, Visible(ev, &model.User{ID: "usr-3", Roles: []model.Role{model.RoleAdmin}}))
}
