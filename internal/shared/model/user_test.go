package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_CanAuthenticate(t *testing.T) {
	cases := map[UserStatus]bool{
		UserStatusApproved: true,
		UserStatusHold:     true,
		UserStatusPending:  false,
		UserStatusBlocked:  false,
		UserStatusDeclined: false,
	}
	for status, want := range cases {
		u := &User{Status: status}
		assert.Equal(t, want, u.CanAuthenticate(), status)
	}
}

func TestUser_Roles(t *testing.T) {
	u := &User{Roles: []Role{RoleOwner}}
	assert.True(t, u.HasRole(RoleOwner, RoleAdmin))
	assert.False(t, u.HasRole(RoleAdmin))
	assert.False(t, u.IsStaff())

	root := &User{Roles: []Role{RoleSuperAdmin}}
	assert.True(t, root.IsAdmin())
	assert.True(t, root.IsStaff())
	assert.False(t, root.HasRole(RoleAdmin))
}

func TestUser_DefaultsAndValidate(t *testing.T) {
	u := &User{Email: "  Jane@Example.COM "}
	u.ApplyDefaults()
	assert.Equal(t, "jane@example.com", u.Email)
	assert.Equal(t, []Role{RoleTenant}, u.Roles)
	assert.Equal(t, UserStatusPending, u.Status)
	assert.Equal(t, AuthTypeStandard, u.AuthType)
	require.NoError(t, u.Validate())

	u.Roles = []Role{"janitor"}
	assert.Error(t, u.Validate())
}

func TestUser_PasswordNeverSerialized(t *testing.T) {
	u := &User{ID: "usr-1", Email: "a@b.io", PasswordHash: "$2a$10$secret"}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.NotContains(t, string(b), "password")
}

func TestOwner_Virtuals(t *testing.T) {
	o := &Owner{Contact: Contact{FirstName: " Ann ", LastName: "Lee", Email: "ANN@X.IO", Phone: "555"}}
	o.Normalize()
	require.NoError(t, o.Validate())
	assert.Equal(t, "ann@x.io", o.Email)
	assert.Equal(t, OwnerStatusActive, o.Status)
	assert.Equal(t, "Ann Lee", o.DisplayName())

	o.BusinessInfo = &BusinessInfo{BusinessName: "Lee Homes"}
	assert.Equal(t, "Lee Homes", o.DisplayName())

	b, err := json.Marshal(o)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "Ann", out["firstName"])
	assert.Equal(t, "Ann Lee", out["fullName"])
	assert.Equal(t, "Lee Homes", out["displayName"])
}

func TestTenant_Age(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	dob := time.Date(2000, 7, 1, 0, 0, 0, 0, time.UTC)
	tn := &Tenant{DateOfBirth: &dob}
	assert.Equal(t, 25, tn.Age(now))

	tn.DateOfBirth = nil
	assert.Equal(t, 0, tn.Age(now))
}

func TestTenant_Validate(t *testing.T) {
	tn := &Tenant{Contact: Contact{FirstName: "Bo", LastName: "Ng", Email: "bo@x.io", Phone: "1"}}
	tn.Normalize()
	require.NoError(t, tn.Validate())

	tn.Email = "not-an-email"
	var verr *ValidationError
	require.ErrorAs(t, tn.Validate(), &verr)
	assert.Equal(t, "email", verr.Field)
}
