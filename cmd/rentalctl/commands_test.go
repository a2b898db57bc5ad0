package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/cache"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/infra"
	"rental-admin/internal/shared/model"
	sqlitedriver "rental-admin/internal/shared/storage/driver/sqlite"
	"rental-admin/internal/shared/storage/repository"
)

// 会话与事件总线跨命令共享，Close 不真正关闭
type sharedSessions struct{ *cache.Memory }

func (sharedSessions) Close() error { return nil }

type sharedEvents struct{ *eventbus.Memory }

func (sharedEvents) Close() error { return nil }

type harness struct {
	dsn      string
	cfg      *config.Config
	sessions *cache.Memory
	events   *eventbus.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dsn: filepath.Join(t.TempDir(), "rental.db"),
		cfg: &config.Config{Auth: config.AuthConfig{
			BcryptCost:    bcrypt.MinCost,
			AdminEmail:    "root@example.com",
			AdminPassword: "rootpass",
		}},
		sessions: cache.NewMemory(0),
		events:   eventbus.NewMemory(),
	}
	t.Cleanup(func() {
		h.sessions.Close()
		h.events.Close()
	})
	return h
}

func (h *harness) open(ctx context.Context, configDir string) (*infra.Infrastructure, *config.Config, error) {
	store, err := h.store()
	if err != nil {
		return nil, nil, err
	}
	return &infra.Infrastructure{
		Storage:  store,
		Sessions: sharedSessions{h.sessions},
		Events:   sharedEvents{h.events},
	}, h.cfg, nil
}

func (h *harness) store() (*repository.Store, error) {
	db, err := sqlitedriver.Open(h.dsn)
	if err != nil {
		return nil, err
	}
	dialect := sqlitedriver.NewDialect()
	if err := dialect.AutoMigrate(db); err != nil {
		return nil, err
	}
	return repository.NewStore(db, dialect), nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(h.open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) user(t *testing.T, email string) *model.User {
	t.Helper()
	store, err := h.store()
	require.NoError(t, err)
	defer store.Close()
	u, err := store.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func TestSeedAdmin(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "seed-admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Created superadmin root@example.com")

	u := h.user(t, "root@example.com")
	require.NotNil(t, u)
	assert.True(t, u.IsSuperAdmin())
	assert.Equal(t, model.UserStatusApproved, u.Status)

	out, err = h.run(t, "seed-admin")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = h.run(t, "seed-admin", "--email", "Second@Example.com", "--password", "another1")
	require.NoError(t, err)
	assert.Contains(t, out, "second@example.com")
}

func TestUserStatus(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "seed-admin", "--email", "tenant@example.com", "--password", "secret123")
	require.NoError(t, err)
	u := h.user(t, "tenant@example.com")

	ctx := context.Background()
	require.NoError(t, h.sessions.SaveSession(ctx, &cache.Session{ID: "s1", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}))

	out, err := h.run(t, "user", "status", "tenant@example.com", "blocked")
	require.NoError(t, err)
	assert.Contains(t, out, "approved -> blocked")
	assert.Equal(t, model.UserStatusBlocked, h.user(t, "tenant@example.com").Status)

	s, err := h.sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, s)

	events, err := h.events.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventUserStatusChanged, events[0].Type)
	assert.True(t, events[0].VisibleTo(u.ID))

	_, err = h.run(t, "user", "status", "tenant@example.com", "frozen")
	assert.ErrorContains(t, err, "invalid status")

	_, err = h.run(t, "user", "status", "ghost@example.com", "approved")
	assert.ErrorContains(t, err, "not found")

	_, err = h.run(t, "user", "status", "tenant@example.com")
	assert.Error(t, err)
}

func TestResetPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "seed-admin")
	require.NoError(t, err)

	_, err = h.run(t, "user", "reset-password", "root@example.com", "--password", "123")
	assert.ErrorContains(t, err, "at least 6")

	out, err := h.run(t, "user", "reset-password", "ROOT@example.com", "--password", "brand-new-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "Password reset for root@example.com")

	u := h.user(t, "root@example.com")
	assert.True(t, auth.CheckPassword("brand-new-pass", u.PasswordHash))
	assert.False(t, auth.CheckPassword("rootpass", u.PasswordHash))
	require.NotNil(t, u.PasswordChangedAt)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "seed-admin")
	require.NoError(t, err)

	out, err := h.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "users:        1")
	assert.Contains(t, out, "apartments:   0")
	assert.Contains(t, out, "applications: 0")
}

func TestCompose(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "compose")
	require.NoError(t, err)
	assert.Contains(t, out, "image: mongo:7")
	assert.Contains(t, out, "minio/minio")
}
