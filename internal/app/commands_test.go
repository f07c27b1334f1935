package app_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"housing_sync/internal/app"
	"housing_sync/internal/domain"
)

var (
	landlord = domain.User{ID: "7", Name: "Sarah", Phone: "+256700000007", Role: domain.RoleLandlord}
	other    = domain.User{ID: "8", Name: "John", Role: domain.RoleLandlord}
	tenant   = domain.User{ID: "9", Name: "Ann", Role: domain.RoleTenant}
	admin    = domain.User{ID: "1", Name: "Root", Role: domain.RoleAdmin}
)

func jpegUpload(id string) app.PhotoUpload {
	return app.PhotoUpload{
		ID:       id,
		Data:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake-jpeg-bytes")),
		FileName: "front.jpg",
		MIMEType: "image/jpeg",
	}
}

func TestCreateProperty_RolesAndDefaults(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{}
	c := app.NewCommandService(repo, cache)
	ctx := context.Background()

	if _, err := c.CreateProperty(ctx, tenant, villa()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("tenant create: want ErrForbidden, got %v", err)
	}

	in := domain.Property{
		Title: "  Kololo Studio ", Price: 400000, Bedrooms: 1,
		Amenities: []string{"WiFi", "wifi", " Parking "},
		Landlord:  domain.Landlord{ID: "someone-else"},
	}
	p, err := c.CreateProperty(ctx, landlord, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Title != "Kololo Studio" || p.Currency != domain.CurrencyUGX {
		t.Fatalf("not normalized: %+v", p)
	}
	if p.Landlord.ID != "7" || p.Landlord.Name != "Sarah" {
		t.Fatalf("landlord not taken from actor: %+v", p.Landlord)
	}
	if strings.Join(p.Amenities, ",") != "WiFi,Parking" {
		t.Fatalf("amenities: %v", p.Amenities)
	}
	if len(cache.dels) == 0 || cache.dels[0] != "properties:all" {
		t.Fatalf("list cache not invalidated: %v", cache.dels)
	}

	_, err = c.CreateProperty(ctx, landlord, domain.Property{Price: -1})
	if !domain.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestUpdateDelete_Ownership(t *testing.T) {
	repo := newFakeRepo(villa())
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, time.Minute)
	c := app.NewCommandService(repo, cache)
	ctx := context.Background()

	if _, err := q.GetProperty(ctx, "3"); err != nil {
		t.Fatal(err)
	}

	upd := villa()
	upd.Title = "Naguru Villa (renovated)"
	upd.Landlord = domain.Landlord{ID: "8"}
	if _, err := c.UpdateProperty(ctx, other, upd); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other landlord update: want ErrForbidden, got %v", err)
	}
	p, err := c.UpdateProperty(ctx, landlord, upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Landlord.ID != "7" {
		t.Fatalf("update changed owner: %+v", p.Landlord)
	}

	got, _ := q.GetProperty(ctx, "3")
	if got.Title != "Naguru Villa (renovated)" {
		t.Fatalf("stale cache after update: %s", got.Title)
	}

	if err := c.DeleteProperty(ctx, tenant, "3"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("tenant delete: want ErrForbidden, got %v", err)
	}
	if err := c.DeleteProperty(ctx, admin, "3"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := q.GetProperty(ctx, "3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted property still served: %v", err)
	}
}

func TestAddPhoto_IdempotentAndBounded(t *testing.T) {
	repo := newFakeRepo(villa())
	c := app.NewCommandService(repo, &fakeCache{})
	ctx := context.Background()

	id, err := c.AddPhoto(ctx, landlord, "3", jpegUpload("up-1"))
	if err != nil || id != "up-1" {
		t.Fatalf("add photo: id=%q err=%v", id, err)
	}
	again, err := c.AddPhoto(ctx, landlord, "3", jpegUpload("up-1"))
	if err != nil || again != "up-1" {
		t.Fatalf("resend: id=%q err=%v", again, err)
	}
	if n := len(repo.props["3"].Images); n != 1 {
		t.Fatalf("resend stored a second copy: %d images", n)
	}

	ph, err := repo.GetPhoto(ctx, "3", "up-1")
	if err != nil || string(ph.Data) != "fake-jpeg-bytes" {
		t.Fatalf("stored photo: %+v %v", ph, err)
	}

	bad := jpegUpload("")
	bad.MIMEType = "application/pdf"
	if _, err := c.AddPhoto(ctx, landlord, "3", bad); !domain.IsValidation(err) {
		t.Fatalf("pdf: want validation error, got %v", err)
	}
	if _, err := c.AddPhoto(ctx, other, "3", jpegUpload("")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other landlord: want ErrForbidden, got %v", err)
	}

	for i := 1; i < app.MaxPhotosPerProperty; i++ {
		if _, err := c.AddPhoto(ctx, landlord, "3", jpegUpload("")); err != nil {
			t.Fatalf("photo %d: %v", i, err)
		}
	}
	if _, err := c.AddPhoto(ctx, landlord, "3", jpegUpload("")); !domain.IsValidation(err) {
		t.Fatalf("11th photo: want validation error, got %v", err)
	}
}

func TestContactLandlord(t *testing.T) {
	c := app.NewCommandService(newFakeRepo(villa()), nil)
	res, err := c.ContactLandlord(context.Background(), domain.ContactRequest{PropertyID: "3", Phone: "+256700000001"})
	if err != nil || !res.Success || res.Message != "Contact request sent successfully" {
		t.Fatalf("contact: %+v %v", res, err)
	}
	if _, err := c.ContactLandlord(context.Background(), domain.ContactRequest{PropertyID: "404", Phone: "+256700000001"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown property: want ErrNotFound, got %v", err)
	}
	if _, err := c.ContactLandlord(context.Background(), domain.ContactRequest{PropertyID: "3"}); !domain.IsValidation(err) {
		t.Fatalf("missing phone: want validation error, got %v", err)
	}
}
