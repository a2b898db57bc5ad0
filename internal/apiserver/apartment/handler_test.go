package apartment

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-admin/internal/apiserver/apitest"
	"rental-admin/internal/shared/model"
)

func newEnv(t *testing.T) *apitest.Env {
	t.Helper()
	env := apitest.New(t)
	NewHandler(env.Store, env.Objects, env.Authn, 1<<20).RegisterRoutes(env.Mux)
	return env
}

// ownerWithToken 创建带房东档案的 owner 用户
func ownerWithToken(t *testing.T, env *apitest.Env, email string) (*model.Owner, string) {
	t.Helper()
	u := env.User(t, email, model.RoleOwner, model.UserStatusApproved)
	return env.Owner(t, u), env.Token(t, u)
}

const fullListing = `{
	"title": "Riverside loft",
	"description": "Two floors, exposed brick",
	"address": {"street": "12 River Rd", "city": "Portland", "state": "OR", "zipCode": "97201", "country": "USA"},
	"propertyDetails": {"bedrooms": 2, "bathrooms": 1, "squareFeet": 980, "floorNumber": 3, "totalFloors": 5, "yearBuilt": 1998},
	"amenities": ["parking", "gym"],
	"rent": {"amount": 2400, "currency": "USD", "period": "monthly"},
	"utilities": {"included": ["water"], "notIncluded": ["electricity"]},
	"availability": {"status": "available", "availableFrom": "2026-12-01", "leaseTerm": "1 year"},
	"images": ["https://cdn.example.com/a.jpg"]
}`

func TestCreateAndFetchRoundTrip(t *testing.T) {
	env := newEnv(t)
	owner, tok := ownerWithToken(t, env, "owner@example.com")

	rec := env.Do(t, "POST", "/api/v1/apartments", fullListing, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, created := apitest.Decode(t, rec)
	assert.Equal(t, owner.ID, created["ownerId"])
	assert.Equal(t, "USD", created["rent"].(map[string]any)["currency"])
	assert.Equal(t, "2 Bedroom", created["propertyType"])
	assert.Equal(t, float64(2400), created["monthlyRent"])
	assert.Equal(t, "active", created["status"])

	rec = env.Do(t, "GET", "/api/v1/apartments/"+created["id"].(string), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, fetched := apitest.Decode(t, rec)
	assert.Equal(t, created, fetched)

	assert.Equal(t, "Riverside loft", fetched["title"])
	assert.Equal(t, []any{"parking", "gym"}, fetched["amenities"])
	assert.Equal(t, []any{"https://cdn.example.com/a.jpg"}, fetched["images"])
	details := fetched["propertyDetails"].(map[string]any)
	assert.Equal(t, float64(3), details["floorNumber"])
	assert.Equal(t, float64(1998), details["yearBuilt"])
	availability := fetched["availability"].(map[string]any)
	assert.Equal(t, "2026-12-01T00:00:00Z", availability["availableFrom"])
	assert.Equal(t, "1 year", availability["leaseTerm"])
	assert.Equal(t, []any{"electricity"}, fetched["utilities"].(map[string]any)["notIncluded"])

	rec = env.Do(t, "GET", "/api/v1/apartments/apt-missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGuards(t *testing.T) {
	env := newEnv(t)
	noProfile := env.User(t, "bare@example.com", model.RoleOwner, model.UserStatusApproved)
	tenant := env.User(t, "tenant@example.com", model.RoleTenant, model.UserStatusApproved)
	held := env.User(t, "held@example.com", model.RoleOwner, model.UserStatusHold)
	env.Owner(t, held)
	_, tok := ownerWithToken(t, env, "owner@example.com")

	rec := env.Do(t, "POST", "/api/v1/apartments", fullListing, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/apartments", fullListing, env.Token(t, tenant))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/apartments", fullListing, env.Token(t, held))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/apartments", fullListing, env.Token(t, noProfile))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "POST", "/api/v1/apartments", `{"title":"No address","description":"x","propertyDetails":{"bedrooms":1,"bathrooms":1,"squareFeet":10},"rent":{"amount":10}}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env2, _ := apitest.Decode(t, rec)
	assert.False(t, env2.Success)

	rec = env.Do(t, "POST", "/api/v1/apartments", strings.Replace(fullListing, `"bedrooms": 2`, `"bedrooms": 25`, 1), tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWithUploadedImages(t *testing.T) {
	env := newEnv(t)
	_, tok := ownerWithToken(t, env, "owner@example.com")

	rec := env.Multipart(t, "POST", "/api/v1/apartments", fullListing, []apitest.Part{
		{Field: ImageField, Filename: "front.png", ContentType: "image/png"},
		{Field: ImageField, Filename: "kitchen.jpg", ContentType: "image/jpeg"},
	}, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	images := data["images"].([]any)
	require.Len(t, images, 3)
	assert.True(t, strings.HasPrefix(images[1].(string), "/uploads/apartments/"))

	rec = env.Multipart(t, "POST", "/api/v1/apartments", fullListing, []apitest.Part{
		{Field: ImageField, Filename: "lease.pdf", ContentType: "application/pdf"},
	}, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFilters(t *testing.T) {
	env := newEnv(t)
	owner, _ := ownerWithToken(t, env, "owner@example.com")
	env.Apartment(t, owner.ID, func(a *model.Apartment) {
		a.Title = "Cheap room"
		a.Rent.Amount = 600
		a.Address.City = "Austin"
	})
	env.Apartment(t, owner.ID, func(a *model.Apartment) {
		a.Title = "Family house"
		a.Rent.Amount = 3100
		a.PropertyDetails.Bedrooms = 3
	})
	env.Apartment(t, owner.ID, func(a *model.Apartment) {
		a.Title = "Rented flat"
		a.Rent.Amount = 1500
		a.Availability.Status = model.AvailabilityRented
	})

	titles := func(query string) []string {
		rec := env.Do(t, "GET", "/api/v1/apartments"+query, "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		_, data := apitest.Decode(t, rec)
		var out []string
		for _, item := range data["apartments"].([]any) {
			out = append(out, item.(map[string]any)["title"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"Cheap room", "Rented flat", "Family house"}, titles("?sortBy=rent.amount&sortOrder=asc"))
	assert.Equal(t, []string{"Rented flat", "Family house"}, titles("?minRent=1000&sortBy=rent.amount&sortOrder=asc"))
	assert.Equal(t, []string{"Cheap room"}, titles("?city=aus"))
	assert.Equal(t, []string{"Family house"}, titles("?bedrooms=3"))
	assert.Equal(t, []string{"Rented flat"}, titles("?availability=rented"))
	assert.Equal(t, []string{"Family house"}, titles("?search=FAMILY"))

	rec := env.Do(t, "GET", "/api/v1/apartments?limit=2", "", "")
	_, data := apitest.Decode(t, rec)
	pagination := data["pagination"].(map[string]any)
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["pages"])

	for _, q := range []string{"?minRent=abc", "?bedrooms=1.5", "?sortBy=owner", "?sortOrder=up"} {
		rec := env.Do(t, "GET", "/api/v1/apartments"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestUpdatePermissions(t *testing.T) {
	env := newEnv(t)
	owner, tok := ownerWithToken(t, env, "owner@example.com")
	_, otherTok := ownerWithToken(t, env, "other@example.com")
	staff := env.User(t, "staff@example.com", model.RoleStaff, model.UserStatusApproved)
	apt := env.Apartment(t, owner.ID)

	rec := env.Do(t, "PATCH", "/api/v1/apartments/"+apt.ID, `{"rent":{"amount":1300}}`, otherTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "PATCH", "/api/v1/apartments/"+apt.ID, `{"rent":{"amount":1300},"address":{"city":"Shelbyville"},"ownerId":"own-x"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	assert.Equal(t, float64(1300), data["rent"].(map[string]any)["amount"])
	assert.Equal(t, "USD", data["rent"].(map[string]any)["currency"])
	address := data["address"].(map[string]any)
	assert.Equal(t, "Shelbyville", address["city"])
	assert.Equal(t, "1 Main St", address["street"])
	assert.Equal(t, owner.ID, data["ownerId"])

	rec = env.Multipart(t, "PATCH", "/api/v1/apartments/"+apt.ID, `{"title":"Sunny studio with balcony"}`, []apitest.Part{
		{Field: ImageField, Filename: "balcony.png", ContentType: "image/png"},
	}, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, "Sunny studio with balcony", data["title"])
	assert.Len(t, data["images"], 1)

	// admin 路由：员工可以修改任意房源，房东不行
	rec = env.Do(t, "PATCH", "/api/v1/apartments/admin/"+apt.ID, `{"status":"inactive"}`, env.Token(t, staff))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, "inactive", data["status"])

	rec = env.Do(t, "PATCH", "/api/v1/apartments/admin/"+apt.ID, `{"status":"active"}`, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "PATCH", "/api/v1/apartments/admin/"+apt.ID, `{"status":"demolished"}`, env.Token(t, staff))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, "PATCH", "/api/v1/apartments/"+apt.ID+"/unknown", `{}`, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageLimit(t *testing.T) {
	env := newEnv(t)
	owner, tok := ownerWithToken(t, env, "owner@example.com")
	apt := env.Apartment(t, owner.ID, func(a *model.Apartment) {
		for i := 0; i < model.MaxImages; i++ {
			a.Images = append(a.Images, "https://cdn.example.com/"+string(rune('a'+i))+".jpg")
		}
	})
	rec := env.Multipart(t, "PATCH", "/api/v1/apartments/"+apt.ID, "", []apitest.Part{
		{Field: ImageField, Filename: "extra.png", ContentType: "image/png"},
	}, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveImage(t *testing.T) {
	env := newEnv(t)
	owner, tok := ownerWithToken(t, env, "owner@example.com")
	_, otherTok := ownerWithToken(t, env, "other@example.com")

	rec := env.Multipart(t, "POST", "/api/v1/apartments", fullListing, []apitest.Part{
		{Field: ImageField, Filename: "front.png", ContentType: "image/png"},
	}, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := apitest.Decode(t, rec)
	id := data["id"].(string)
	uploaded := data["images"].([]any)[1].(string)
	assert.Equal(t, owner.ID, data["ownerId"])

	path := "/api/v1/apartments/" + id + "/remove-image"
	rec = env.Do(t, "PATCH", path, `{"imageUrl":"`+uploaded+`"}`, otherTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.Do(t, "PATCH", path, `{}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.Do(t, "PATCH", path, `{"imageUrl":"/uploads/apartments/nope.png"}`, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.Do(t, "PATCH", path, `{"imageUrl":"`+uploaded+`"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, []any{"https://cdn.example.com/a.jpg"}, data["images"])
}

func TestDeleteMineAndStats(t *testing.T) {
	env := newEnv(t)
	owner, tok := ownerWithToken(t, env, "owner@example.com")
	_, otherTok := ownerWithToken(t, env, "other@example.com")
	staff := env.User(t, "staff@example.com", model.RoleStaff, model.UserStatusApproved)
	admin := env.User(t, "admin@example.com", model.RoleAdmin, model.UserStatusApproved)
	a1 := env.Apartment(t, owner.ID, func(a *model.Apartment) { a.Rent.Amount = 1000 })
	a2 := env.Apartment(t, owner.ID, func(a *model.Apartment) {
		a.Rent.Amount = 2001
		a.Availability.Status = model.AvailabilityRented
	})

	rec := env.Do(t, "GET", "/api/v1/apartments/owner/my-apartments", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := apitest.Decode(t, rec)
	assert.Len(t, data["apartments"], 2)

	rec = env.Do(t, "GET", "/api/v1/apartments/owner/my-apartments", "", otherTok)
	_, data = apitest.Decode(t, rec)
	assert.Empty(t, data["apartments"])

	rec = env.Do(t, "GET", "/api/v1/apartments/admin/stats", "", env.Token(t, staff))
	require.Equal(t, http.StatusOK, rec.Code)
	_, data = apitest.Decode(t, rec)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["available"])
	assert.Equal(t, float64(1), data["rented"])
	assert.Equal(t, 1500.5, data["averageRent"])

	rec = env.Do(t, "DELETE", "/api/v1/apartments/"+a1.ID, "", otherTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.Do(t, "DELETE", "/api/v1/apartments/"+a1.ID, "", tok)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.Do(t, "DELETE", "/api/v1/apartments/admin/"+a2.ID, "", env.Token(t, staff))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.Do(t, "DELETE", "/api/v1/apartments/admin/"+a2.ID, "", env.Token(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)

	gone, err := env.Store.GetApartment(context.Background(), a2.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
