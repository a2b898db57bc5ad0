package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApplication(now time.Time) *Application {
	return &Application{
		ID:          "app-001",
		TenantID:    "tnt-001",
		ApartmentID: "apt-001",
		ApplicationDetails: ApplicationDetails{
			MoveInDate:       now.Add(30 * 24 * time.Hour),
			LeaseTerm:        "1 year",
			MonthlyIncome:    6000,
			EmploymentStatus: "employed",
		},
		Status:    ApplicationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from  ApplicationStatus
		to    ApplicationStatus
		valid bool
	}{
		{ApplicationPending, ApplicationUnderReview, true},
		{ApplicationPending, ApplicationApproved, true},
		{ApplicationPending, ApplicationRejected, true},
		{ApplicationPending, ApplicationWithdrawn, true},
		{ApplicationUnderReview, ApplicationApproved, true},
		{ApplicationUnderReview, ApplicationRejected, true},
		{ApplicationUnderReview, ApplicationWithdrawn, false},
		{ApplicationUnderReview, ApplicationPending, false},
		{ApplicationApproved, ApplicationRejected, false},
		{ApplicationApproved, ApplicationPending, false},
		{ApplicationRejected, ApplicationApproved, false},
		{ApplicationWithdrawn, ApplicationPending, false},
		{ApplicationPending, ApplicationPending, false},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestApplicationStatus_Blocking(t *testing.T) {
	assert.True(t, ApplicationPending.IsBlocking())
	assert.True(t, ApplicationUnderReview.IsBlocking())
	assert.True(t, ApplicationApproved.IsBlocking())
	assert.False(t, ApplicationRejected.IsBlocking())
	assert.False(t, ApplicationWithdrawn.IsBlocking())

	assert.False(t, ApplicationPending.IsTerminal())
	assert.True(t, ApplicationApproved.IsTerminal())
	assert.True(t, ApplicationWithdrawn.IsTerminal())
}

func TestApplication_SyncBlocking(t *testing.T) {
	app := validApplication(time.Now())
	app.SyncBlocking()
	assert.True(t, app.Blocking)

	app.Status = ApplicationRejected
	app.SyncBlocking()
	assert.False(t, app.Blocking)
}

func TestApplication_Validate(t *testing.T) {
	now := time.Now()

	require.NoError(t, validApplication(now).Validate(now))

	tests := []struct {
		name   string
		mutate func(a *Application)
		field  string
	}{
		{"past move-in", func(a *Application) { a.ApplicationDetails.MoveInDate = now.Add(-time.Hour) }, "applicationDetails.moveInDate"},
		{"bad lease term", func(a *Application) { a.ApplicationDetails.LeaseTerm = "3 years" }, "applicationDetails.leaseTerm"},
		{"negative income", func(a *Application) { a.ApplicationDetails.MonthlyIncome = -1 }, "applicationDetails.monthlyIncome"},
		{"bad employment", func(a *Application) { a.ApplicationDetails.EmploymentStatus = "pirate" }, "applicationDetails.employmentStatus"},
		{"missing tenant", func(a *Application) { a.TenantID = "" }, "tenantId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := validApplication(now)
			tt.mutate(app)
			err := app.Validate(now)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestApplication_IncomeToRentRatio(t *testing.T) {
	app := validApplication(time.Now())
	assert.Zero(t, app.IncomeToRentRatio())

	app.Apartment = &Apartment{Rent: Rent{Amount: 2000, Period: RentMonthly}}
	assert.Equal(t, 3.0, app.IncomeToRentRatio())
}

func TestApplication_MarshalJSON(t *testing.T) {
	now := time.Now()
	app := validApplication(now)
	app.CreatedAt = now.Add(-72 * time.Hour)
	app.SyncBlocking()

	b, err := json.Marshal(app)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, float64(3), out["ageInDays"])
	assert.NotContains(t, out, "blocking")
	assert.NotContains(t, out, "apartment")
}
