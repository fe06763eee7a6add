package calendar

import (
	"context"
	"time"

	"festa/db"
	"festa/models"
)

const defaultOverbookingPct = 10

// Service reads the per-code calendar configuration. The configuration is
// owned elsewhere; this is the engine's read-only view of it.
type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Config(ctx context.Context, codeID string) (*models.CalendarConfig, error) {
	var cfg models.CalendarConfig
	if err := s.store.Collection(db.ConfigsCollection).Get(ctx, codeID, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DayConfig is one day's view of a code's calendar.
type DayConfig struct {
	CodeID    string         `json:"codeId"`
	BoothDate string         `json:"boothDate"`
	Booths    []models.Booth `json:"booths"`
	TimeSlots []string       `json:"timeSlots"`
	Cells     []models.Cell  `json:"cells"`
}

// Day resolves the booths, ordered time slots, and cells for one date.
func (s *Service) Day(ctx context.Context, codeID, boothDate string) (*DayConfig, error) {
	cfg, err := s.Config(ctx, codeID)
	if err != nil {
		return nil, err
	}
	day := &DayConfig{
		CodeID:    codeID,
		BoothDate: boothDate,
		Booths:    cfg.Booths,
		TimeSlots: cfg.TimeSlots,
	}
	for _, cell := range cfg.Cells {
		if cell.BoothDate == boothDate {
			day.Cells = append(day.Cells, cell)
		}
	}
	return day, nil
}

// FindCell returns the cell with the given id on the given date, or nil.
func (d *DayConfig) FindCell(cellID string) *models.Cell {
	for i := range d.Cells {
		if d.Cells[i].CellID == cellID {
			return &d.Cells[i]
		}
	}
	return nil
}

// Booth returns the booth definition for an id, or nil.
func (d *DayConfig) Booth(boothID string) *models.Booth {
	for i := range d.Booths {
		if d.Booths[i].BoothID == boothID {
			return &d.Booths[i]
		}
	}
	return nil
}

// CapacityFor resolves a cell's capacity, defaulting to its booth when the
// cell carries none. Overbooking defaults to 10% and is clamped to [0,50]
// at admission time, not here.
func (d *DayConfig) CapacityFor(cell *models.Cell) models.CapacityConfig {
	out := models.CapacityConfig{OverbookingPercentage: defaultOverbookingPct}
	booth := d.Booth(cell.BoothID)
	if booth != nil {
		out.Capacity = booth.Capacity
		if booth.OverbookingPercentage > 0 {
			out.OverbookingPercentage = booth.OverbookingPercentage
		}
	}
	if cell.Capacity != nil {
		out.Capacity = *cell.Capacity
	}
	if cell.OverbookingPercentage != nil {
		out.OverbookingPercentage = *cell.OverbookingPercentage
	}
	return out
}

// MaxRegistrationsPerPhone is how many registrations one phone may hold
// across all slots of a booth-day. Defaults to 1.
func MaxRegistrationsPerPhone(cfg *models.CalendarConfig) int {
	if cfg != nil && cfg.MaxRegistrationsPerPhone > 0 {
		return cfg.MaxRegistrationsPerPhone
	}
	return 1
}

// SlotIndexAt maps a wall-clock time onto the day's ordered slot list: the
// last slot whose start is not after now. Before the first slot (or with no
// slots at all) it is 0.
func SlotIndexAt(timeSlots []string, now time.Time) int {
	idx := 0
	hhmm := now.Format("15:04")
	for i, slot := range timeSlots {
		if slot <= hhmm {
			idx = i
		}
	}
	return idx
}
