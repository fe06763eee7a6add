package calendar

import (
	"context"
	"testing"
	"time"

	"festa/db"
	"festa/models"
)

func intp(v int) *int { return &v }

func seedConfig(t *testing.T, store db.Store) {
	t.Helper()
	cfg := models.CalendarConfig{
		ID: "code1",
		Booths: []models.Booth{
			{BoothID: "b1", Name: "Photo Booth", Capacity: 10, OverbookingPercentage: 10},
			{BoothID: "b2", Name: "Games", Capacity: 6},
		},
		TimeSlots: []string{"10:00", "11:00", "12:00", "13:00"},
		Cells: []models.Cell{
			{CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", StartSlotIndex: 0, Title: "Morning"},
			{CellID: "c2", BoothID: "b1", BoothDate: "2024-06-01", StartSlotIndex: 1, Title: "Late morning", Capacity: intp(4), OverbookingPercentage: intp(0)},
			{CellID: "c3", BoothID: "b2", BoothDate: "2024-06-02", StartSlotIndex: 0, Title: "Next day"},
		},
	}
	if err := store.Collection(db.ConfigsCollection).Put(context.Background(), cfg.ID, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

func TestDayFiltersCells(t *testing.T) {
	store := db.NewMemoryStore()
	seedConfig(t, store)
	svc := NewService(store)

	day, err := svc.Day(context.Background(), "code1", "2024-06-01")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if len(day.Cells) != 2 {
		t.Fatalf("expected 2 cells on 2024-06-01, got %d", len(day.Cells))
	}
	if day.FindCell("c3") != nil {
		t.Fatal("c3 belongs to another date")
	}
	if day.FindCell("c1") == nil {
		t.Fatal("c1 missing from day view")
	}
}

func TestCapacityForDefaults(t *testing.T) {
	store := db.NewMemoryStore()
	seedConfig(t, store)
	svc := NewService(store)
	day, _ := svc.Day(context.Background(), "code1", "2024-06-01")

	// cell without its own capacity inherits the booth's
	got := day.CapacityFor(day.FindCell("c1"))
	if got.Capacity != 10 || got.OverbookingPercentage != 10 {
		t.Fatalf("c1 capacity = %+v", got)
	}

	// cell overrides win
	got = day.CapacityFor(day.FindCell("c2"))
	if got.Capacity != 4 || got.OverbookingPercentage != 0 {
		t.Fatalf("c2 capacity = %+v", got)
	}
}

func TestCapacityForBoothWithoutOverbooking(t *testing.T) {
	store := db.NewMemoryStore()
	seedConfig(t, store)
	svc := NewService(store)
	day, _ := svc.Day(context.Background(), "code1", "2024-06-02")

	// booth b2 has no overbooking configured: the 10% default applies
	got := day.CapacityFor(day.FindCell("c3"))
	if got.Capacity != 6 || got.OverbookingPercentage != 10 {
		t.Fatalf("c3 capacity = %+v", got)
	}
}

func TestMaxRegistrationsPerPhoneDefault(t *testing.T) {
	if got := MaxRegistrationsPerPhone(&models.CalendarConfig{}); got != 1 {
		t.Fatalf("default = %d, want 1", got)
	}
	if got := MaxRegistrationsPerPhone(&models.CalendarConfig{MaxRegistrationsPerPhone: 3}); got != 3 {
		t.Fatalf("configured = %d, want 3", got)
	}
	if got := MaxRegistrationsPerPhone(nil); got != 1 {
		t.Fatalf("nil config = %d, want 1", got)
	}
}

func TestSlotIndexAt(t *testing.T) {
	slots := []string{"10:00", "11:00", "12:00"}
	at := func(hhmm string) time.Time {
		ts, _ := time.Parse("2006-01-02 15:04", "2024-06-01 "+hhmm)
		return ts
	}
	cases := []struct {
		clock string
		want  int
	}{
		{"09:00", 0},
		{"10:00", 0},
		{"10:59", 0},
		{"11:00", 1},
		{"12:30", 2},
	}
	for _, tc := range cases {
		if got := SlotIndexAt(slots, at(tc.clock)); got != tc.want {
			t.Errorf("SlotIndexAt(%s) = %d, want %d", tc.clock, got, tc.want)
		}
	}
	if got := SlotIndexAt(nil, at("10:00")); got != 0 {
		t.Errorf("empty slot list should map to 0, got %d", got)
	}
}
