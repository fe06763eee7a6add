package checkin

import (
	"context"
	"testing"

	"festa/db"
	"festa/models"
)

func TestCountOnMatchesNormalizedPhones(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)

	put := func(visitor, cell, phone string, checkedIn bool) {
		reg := models.Registration{
			CodeID: "code1", VisitorID: visitor, CellID: cell, BoothID: "b1",
			BoothDate: "2024-06-01", Phone: phone, Count: 1, CheckedIn: checkedIn,
		}
		reg.ID = models.RegistrationID(visitor, cell, "2024-06-01", "b1")
		store.Collection(db.RegistrationsCollection).Put(ctx, reg.ID, reg)
	}

	put("v1", "c1", "050-1234567", true)
	put("v1", "c2", "0501234567", true) // same phone, different formatting
	put("v2", "tight", "050-1234567", false)
	put("v3", "c1", "052-7654321", true)

	counter := NewCounter(store)
	got, err := counter.CountOn(ctx, "code1", "050 123 4567", "2024-06-01")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != 2 {
		t.Fatalf("count = %d, want 2 (checked-in only, formats normalized)", got)
	}
}

func TestCountOnEmptyPhone(t *testing.T) {
	store := db.NewMemoryStore()
	counter := NewCounter(store)
	got, err := counter.CountOn(context.Background(), "code1", "", "2024-06-01")
	if err != nil || got != 0 {
		t.Fatalf("empty phone should count 0, got %d err %v", got, err)
	}
}

func TestCountOnOtherDayExcluded(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()

	reg := models.Registration{
		CodeID: "code1", VisitorID: "v1", CellID: "c1", BoothID: "b1",
		BoothDate: "2024-06-02", Phone: "0501234567", Count: 1, CheckedIn: true,
	}
	reg.ID = models.RegistrationID("v1", "c1", "2024-06-02", "b1")
	store.Collection(db.RegistrationsCollection).Put(ctx, reg.ID, reg)

	got, _ := NewCounter(store).CountOn(ctx, "code1", "0501234567", "2024-06-01")
	if got != 0 {
		t.Fatalf("yesterday's check-in must not count today, got %d", got)
	}
}
