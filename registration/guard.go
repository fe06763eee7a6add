package registration

import (
	"context"

	"festa/db"
	"festa/models"
	"festa/utils"
)

// Guard admits or rejects new party sizes against overbooked capacity and
// enforces the phone-based uniqueness rules. Seat accounting goes through
// an atomic increment on the per-activity counter, so two concurrent
// admissions cannot jointly overshoot the effective capacity.
type Guard struct {
	store db.Store
}

func NewGuard(store db.Store) *Guard {
	return &Guard{store: store}
}

// AdmitRequest identifies one admission attempt.
type AdmitRequest struct {
	CodeID    string
	VisitorID string
	CellID    string
	BoothID   string
	BoothDate string

	Phone          string // raw; compared digits-normalized
	RequestedCount int
	Capacity       models.CapacityConfig
	MaxPerPhone    int
}

// Admission is a successful outcome.
type Admission struct {
	EffectiveCapacity int
	CurrentCount      int // committed seats including this admission
	AvailableSlots    int
	Prior             *models.Registration // requester's overwritten registration, if any
}

// EffectiveCapacity inflates a nominal capacity by a clamped overbooking
// percentage: floor(capacity * (1 + pct/100)).
func EffectiveCapacity(cfg models.CapacityConfig) int {
	pct := cfg.OverbookingPercentage
	if pct < 0 {
		pct = 0
	}
	if pct > 50 {
		pct = 50
	}
	return cfg.Capacity * (100 + pct) / 100
}

// ClampCount keeps a party size in [1,10].
func ClampCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > 10 {
		return 10
	}
	return count
}

// Admit checks the phone rules and reserves seats. The caller persists the
// registration afterwards and must Release the seats if that write fails.
func (g *Guard) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	regs := g.store.Collection(db.RegistrationsCollection)
	ownID := models.RegistrationID(req.VisitorID, req.CellID, req.BoothDate, req.BoothID)

	if phone := utils.NormalizePhone(req.Phone); phone != "" {
		var inActivity []models.Registration
		err := regs.Find(ctx, db.Filter{
			"codeId":    req.CodeID,
			"cellId":    req.CellID,
			"boothId":   req.BoothID,
			"boothDate": req.BoothDate,
		}, &inActivity)
		if err != nil {
			return nil, err
		}
		for _, r := range inActivity {
			if r.VisitorID != req.VisitorID && utils.NormalizePhone(r.Phone) == phone {
				return nil, models.Reject(models.CodePhoneAlreadyRegistered)
			}
		}

		var inBoothDay []models.Registration
		err = regs.Find(ctx, db.Filter{
			"codeId":    req.CodeID,
			"boothId":   req.BoothID,
			"boothDate": req.BoothDate,
		}, &inBoothDay)
		if err != nil {
			return nil, err
		}
		held := 0
		for _, r := range inBoothDay {
			if r.ID != ownID && utils.NormalizePhone(r.Phone) == phone {
				held++
			}
		}
		if held >= req.MaxPerPhone {
			return nil, models.Reject(models.CodeMaxRegistrationsPerPhone)
		}
	}

	var prior *models.Registration
	var existing models.Registration
	switch err := regs.Get(ctx, ownID, &existing); err {
	case nil:
		prior = &existing
	case db.ErrNotFound:
	default:
		return nil, err
	}

	effCap := EffectiveCapacity(req.Capacity)
	delta := req.RequestedCount
	if prior != nil {
		// overwrite: only the difference in party size competes for seats
		delta -= prior.Count
	}

	key := models.ActivityKey(req.CellID, req.BoothDate, req.BoothID)
	counters := g.store.Collection(db.CountersCollection)
	ok, err := counters.IncrementWithLimit(ctx, key, "seats", int64(delta), int64(effCap))
	if err != nil {
		return nil, err
	}
	if !ok {
		current := g.seats(ctx, key)
		if prior != nil {
			// occupancy as the requester sees it, without their own prior seats
			current -= prior.Count
			if current < 0 {
				current = 0
			}
		}
		avail := effCap - current
		if avail < 0 {
			avail = 0
		}
		return nil, models.RejectWith(models.CodeCapacityExceeded, map[string]any{
			"currentCount":      current,
			"capacity":          req.Capacity.Capacity,
			"effectiveCapacity": effCap,
			"availableSlots":    avail,
		})
	}

	current := g.seats(ctx, key)
	return &Admission{
		EffectiveCapacity: effCap,
		CurrentCount:      current,
		AvailableSlots:    effCap - current,
		Prior:             prior,
	}, nil
}

// Release gives seats back, e.g. on unregister or a failed write after a
// successful Admit.
func (g *Guard) Release(ctx context.Context, cellID, boothDate, boothID string, count int) error {
	key := models.ActivityKey(cellID, boothDate, boothID)
	_, err := g.store.Collection(db.CountersCollection).
		IncrementWithLimit(ctx, key, "seats", -int64(count), 0)
	return err
}

// Acquire reserves seats at an activity without the phone checks; the
// transfer engine re-validates capacity at its destination through this.
func (g *Guard) Acquire(ctx context.Context, cellID, boothDate, boothID string, count int, cfg models.CapacityConfig) (bool, int, error) {
	effCap := EffectiveCapacity(cfg)
	key := models.ActivityKey(cellID, boothDate, boothID)
	ok, err := g.store.Collection(db.CountersCollection).
		IncrementWithLimit(ctx, key, "seats", int64(count), int64(effCap))
	return ok, effCap, err
}

func (g *Guard) seats(ctx context.Context, key string) int {
	var counter models.SeatCounter
	if err := g.store.Collection(db.CountersCollection).Get(ctx, key, &counter); err != nil {
		return 0
	}
	return int(counter.Seats)
}

// Seats reports the committed seat count for an activity instance.
func (g *Guard) Seats(ctx context.Context, cellID, boothDate, boothID string) int {
	return g.seats(ctx, models.ActivityKey(cellID, boothDate, boothID))
}
