package owner

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-admin/internal/apiserver/apitest"
	"rental-admin/internal/shared/model"
)

func newEnv(t *testing.T) *apitest.Env {
	t.Helper()
	env := apitest.New(t)
	NewHandler(env.Store, env.Authn, env.Cfg.BcryptCost).RegisterRoutes(env.Mux)
	return env
}

const createBody = `{
	"firstName": "Ada",
	"lastName": "Landlord",
	"email": "Ada@Example.com",
	"phone": "555-0101",
	"password": "secret123",
	"businessInfo": {"businessName": "Ada Homes", "businessType": "company"}
}`

func TestCreateOwner(t *testing.T) {
	env := newEnv(t)
	staff := env.User(t, "staff@example.com", model.RoleStaff, model.UserStatusApproved)
	tenant := env.User(t, "tenant@example.com", model.RoleTenant, model.UserStatusApproved)

	rec := env.Do(t, "POST", "/api/v1/owners", createBody, env.Token(t, tenant))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/owners", createBody, env.Token(t, staff))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	assert.Equal(t, "ada@example.com", data["email"])
	assert.Equal(t, "Ada Landlord", data["fullName"])
	assert.Equal(t, "Ada Homes", data["displayName"])
	assert.Equal(t, "active", data["status"])
	assert.NotContains(t, rec.Body.String(), "secret123")

	user, err := env.Store.GetUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, data["userId"], user.ID)
	assert.Equal(t, []model.Role{model.RoleOwner}, user.Roles)
	assert.Equal(t, model.UserStatusApproved, user.Status)

	rec = env.Do(t, "POST", "/api/v1/owners", createBody, env.Token(t, staff))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/owners", `{"firstName":"A","lastName":"B","email":"b@example.com","phone":"1"}`, env.Token(t, staff))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/owners", `{"firstName":"A","lastName":"B","email":"bad","phone":"1","password":"secret123"}`, env.Token(t, staff))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndStats(t *testing.T) {
	env := newEnv(t)
	admin := env.User(t, "admin@example.com", model.RoleAdmin, model.UserStatusApproved)
	for _, email := range []string{"one@example.com", "two@example.com", "three@example.com"} {
		env.Owner(t, env.User(t, email, model.RoleOwner, model.UserStatusApproved))
	}
	tok := env.Token(t, admin)

	rec := env.Do(t, "GET", "/api/v1/owners?page=1&limit=2", "", tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	assert.Len(t, data["owners"], 2)
	pagination := data["pagination"].(map[string]any)
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["pages"])

	rec = env.Do(t, "GET", "/api/v1/owners?search=TWO", "", tok)
	_, data = apitest.Decode(t, rec)
	assert.Len(t, data["owners"], 1)

	rec = env.Do(t, "GET", "/api/v1/owners?page=x", "", tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, "GET", "/api/v1/owners/stats", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, float64(3), data["total"])
	byStatus := data["byStatus"].(map[string]any)
	assert.Equal(t, float64(3), byStatus["active"])
	assert.Equal(t, float64(0), byStatus["suspended"])
}

func TestProfile(t *testing.T) {
	env := newEnv(t)
	user := env.User(t, "owner@example.com", model.RoleOwner, model.UserStatusApproved)
	other := env.User(t, "taken@example.com", model.RoleTenant, model.UserStatusApproved)
	o := env.Owner(t, user)
	tok := env.Token(t, user)

	rec := env.Do(t, "GET", "/api/v1/owners/profile", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := apitest.Decode(t, rec)
	assert.Equal(t, o.ID, data["id"])

	rec = env.Do(t, "GET", "/api/v1/owners/profile", "", env.Token(t, other))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Do(t, "PUT", "/api/v1/owners/profile", `{"email":"taken@example.com"}`, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 自助更新不能改状态，邮箱变更同步到账户
	rec = env.Do(t, "PUT", "/api/v1/owners/profile", `{"phone":"555-9999","email":"renamed@example.com","status":"suspended","address":{"city":"Austin"}}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, "555-9999", data["phone"])
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "Olivia", data["firstName"])
	assert.Equal(t, o.ID, data["id"])

	u, err := env.Store.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed@example.com", u.Email)

	stored, err := env.Store.GetOwner(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Austin", stored.Address.City)
}

func TestStaffUpdateAndAdminDelete(t *testing.T) {
	env := newEnv(t)
	staff := env.User(t, "staff@example.com", model.RoleStaff, model.UserStatusApproved)
	admin := env.User(t, "admin@example.com", model.RoleAdmin, model.UserStatusApproved)
	user := env.User(t, "owner@example.com", model.RoleOwner, model.UserStatusApproved)
	o := env.Owner(t, user)

	rec := env.Do(t, "PUT", "/api/v1/owners/"+o.ID, `{"status":"suspended"}`, env.Token(t, staff))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	assert.Equal(t, "suspended", data["status"])

	rec = env.Do(t, "PUT", "/api/v1/owners/"+o.ID, `{"status":"retired"}`, env.Token(t, staff))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, "GET", "/api/v1/owners/own-missing", "", env.Token(t, staff))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Do(t, "DELETE", "/api/v1/owners/"+o.ID, "", env.Token(t, staff))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "DELETE", "/api/v1/owners/"+o.ID, "", env.Token(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)

	gone, err := env.Store.GetOwner(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	u, err := env.Store.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, u)
}
