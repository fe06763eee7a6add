package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"festa/db"
	"festa/models"
	"festa/registration"
)

func intp(v int) *int { return &v }

// seedCalendar writes the config every checkin test runs against: one booth
// (capacity 10, 10% overbooking) with two same-day cells and a tight
// third one.
func seedCalendar(t *testing.T, store db.Store) {
	t.Helper()
	cfg := models.CalendarConfig{
		ID: "code1",
		Booths: []models.Booth{
			{BoothID: "b1", Name: "Photo Booth", Capacity: 10, OverbookingPercentage: 10},
		},
		TimeSlots: []string{"10:00", "11:00", "12:00"},
		Cells: []models.Cell{
			{CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", StartSlotIndex: 0, Title: "Morning"},
			{CellID: "c2", BoothID: "b1", BoothDate: "2024-06-01", StartSlotIndex: 1, Title: "Late"},
			{CellID: "tight", BoothID: "b1", BoothDate: "2024-06-01", StartSlotIndex: 2, Title: "Tight", Capacity: intp(1), OverbookingPercentage: intp(0)},
		},
	}
	if err := store.Collection(db.ConfigsCollection).Put(context.Background(), cfg.ID, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

// seedRegistration writes a registration plus its seat hold; withMapping
// controls whether the token index entry exists.
func seedRegistration(t *testing.T, store db.Store, reg models.Registration, withMapping bool) models.Registration {
	t.Helper()
	ctx := context.Background()
	if reg.CodeID == "" {
		reg.CodeID = "code1"
	}
	if reg.Count == 0 {
		reg.Count = 1
	}
	reg.ID = models.RegistrationID(reg.VisitorID, reg.CellID, reg.BoothDate, reg.BoothID)
	if err := store.Collection(db.RegistrationsCollection).Put(ctx, reg.ID, reg); err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	guard := registration.NewGuard(store)
	cfg := models.CapacityConfig{Capacity: 10, OverbookingPercentage: 10}
	if ok, _, err := guard.Acquire(ctx, reg.CellID, reg.BoothDate, reg.BoothID, reg.Count, cfg); err != nil || !ok {
		t.Fatalf("seed seats: ok=%v err=%v", ok, err)
	}

	if withMapping {
		mapping := models.QRTokenMapping{
			ID:             reg.QRToken,
			CodeID:         reg.CodeID,
			RegistrationID: reg.ID,
			CreatedAt:      time.Now().Unix(),
		}
		if err := store.Collection(db.QRTokensCollection).Put(ctx, mapping.ID, mapping); err != nil {
			t.Fatalf("seed mapping: %v", err)
		}
	}
	return reg
}

func TestResolveViaMapping(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	reg := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, true)

	got, err := NewResolver(store).Resolve(ctx, "TOK1", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != reg.ID {
		t.Fatalf("resolved %s, want %s", got.ID, reg.ID)
	}
}

func TestResolveFallbackScanRepairsIndex(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	reg := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, false) // no index entry

	resolver := NewResolver(store)
	got, err := resolver.Resolve(ctx, "TOK1", nil)
	if err != nil {
		t.Fatalf("resolve without mapping: %v", err)
	}
	if got.ID != reg.ID {
		t.Fatalf("resolved %s, want %s", got.ID, reg.ID)
	}

	// tier 3 success always leaves a mapping behind
	var mapping models.QRTokenMapping
	if err := store.Collection(db.QRTokensCollection).Get(ctx, "TOK1", &mapping); err != nil {
		t.Fatalf("mapping not repaired: %v", err)
	}
	if mapping.RegistrationID != reg.ID {
		t.Fatalf("repaired mapping points at %s", mapping.RegistrationID)
	}
}

func TestResolveTiersAgree(t *testing.T) {
	// with and without the index, the same registration comes back
	ctx := context.Background()

	run := func(withMapping bool) string {
		store := db.NewMemoryStore()
		seedCalendar(t, store)
		seedRegistration(t, store, models.Registration{
			VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
		}, withMapping)
		got, err := NewResolver(store).Resolve(ctx, "TOK1", nil)
		if err != nil {
			t.Fatalf("resolve(withMapping=%v): %v", withMapping, err)
		}
		return got.ID
	}

	if a, b := run(true), run(false); a != b {
		t.Fatalf("tiers disagree: %s vs %s", a, b)
	}
}

func TestResolveDirectHintRepairsIndex(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	reg := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, false)

	hint := &models.ResolveHint{CodeID: "code1", RegistrationID: reg.ID}
	got, err := NewResolver(store).Resolve(ctx, "TOK1", hint)
	if err != nil {
		t.Fatalf("resolve with hint: %v", err)
	}
	if got.ID != reg.ID {
		t.Fatalf("resolved %s", got.ID)
	}

	var mapping models.QRTokenMapping
	if err := store.Collection(db.QRTokensCollection).Get(ctx, "TOK1", &mapping); err != nil {
		t.Fatalf("hint hit should repair the mapping: %v", err)
	}
}

func TestResolveStaleHintFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	reg := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, true)

	// hint points at a document that does not exist anymore
	hint := &models.ResolveHint{CodeID: "code1", RegistrationID: "gone"}
	got, err := NewResolver(store).Resolve(ctx, "TOK1", hint)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != reg.ID {
		t.Fatalf("resolved %s, want %s", got.ID, reg.ID)
	}
}

func TestResolveNotFound(t *testing.T) {
	store := db.NewMemoryStore()
	seedCalendar(t, store)

	_, err := NewResolver(store).Resolve(context.Background(), "NOPE", nil)
	var rej *models.Rejection
	if !errors.As(err, &rej) || rej.Code != models.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
