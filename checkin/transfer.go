package checkin

import (
	"context"
	"errors"
	"time"

	"festa/calendar"
	"festa/db"
	"festa/models"
	"festa/registration"

	"github.com/google/uuid"
)

// Transferer relocates a registration to a different cell on the same day
// and checks it in, the "wrong slot, let them in anyway" door flow.
//
// The multi-step write (destination → source delete → index patch) persists
// a step marker per run, so a transfer interrupted mid-flight is completed
// by the next scan of the same token instead of duplicated.
type Transferer struct {
	store    db.Store
	resolver *Resolver
	cal      *calendar.Service
	guard    *registration.Guard
}

func NewTransferer(store db.Store) *Transferer {
	return &Transferer{
		store:    store,
		resolver: NewResolver(store),
		cal:      calendar.NewService(store),
		guard:    registration.NewGuard(store),
	}
}

// TransferResult reports the relocated, checked-in registration. The
// scenario is ON_TIME by definition: the visitor was just moved to the
// current slot.
type TransferResult struct {
	Registration models.Registration `json:"registration"`
	Scenario     models.Scenario     `json:"scenario"`
	Resumed      bool                `json:"resumed,omitempty"`
}

func (t *Transferer) Transfer(ctx context.Context, codeID, qrToken, destCellID string, sc models.ScannerContext, adminID string) (*TransferResult, error) {
	// A partial run for this token is finished before anything new starts.
	if op := t.pendingOp(ctx, codeID, qrToken); op != nil {
		if err := t.complete(ctx, op, nil); err != nil {
			return nil, err
		}
		var dest models.Registration
		if err := t.store.Collection(db.RegistrationsCollection).Get(ctx, op.DestinationID, &dest); err != nil {
			return nil, err
		}
		return &TransferResult{Registration: dest, Scenario: models.ScenarioOnTime, Resumed: true}, nil
	}

	source, err := t.resolver.Resolve(ctx, qrToken, nil)
	if err != nil {
		return nil, err
	}

	if source.BoothDate != sc.CurrentDate {
		return nil, models.Reject(models.CodeWrongDate)
	}
	if destCellID == source.CellID {
		return nil, models.Reject(models.CodeSameSlot)
	}

	day, err := t.cal.Day(ctx, codeID, source.BoothDate)
	if err != nil {
		return nil, err
	}
	destCell := day.FindCell(destCellID)
	if destCell == nil {
		return nil, models.Reject(models.CodeSlotNotFound)
	}

	cfg := day.CapacityFor(destCell)
	ok, effCap, err := t.guard.Acquire(ctx, destCell.CellID, source.BoothDate, destCell.BoothID, source.Count, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		current := t.guard.Seats(ctx, destCell.CellID, source.BoothDate, destCell.BoothID)
		avail := effCap - current
		if avail < 0 {
			avail = 0
		}
		return nil, models.RejectWith(models.CodeCapacityExceeded, map[string]any{
			"currentCount":      current,
			"capacity":          cfg.Capacity,
			"effectiveCapacity": effCap,
			"availableSlots":    avail,
		})
	}

	destID := models.RegistrationID(source.VisitorID, destCell.CellID, source.BoothDate, destCell.BoothID)
	regs := t.store.Collection(db.RegistrationsCollection)
	var clash models.Registration
	switch err := regs.Get(ctx, destID, &clash); {
	case err == nil:
		_ = t.guard.Release(ctx, destCell.CellID, source.BoothDate, destCell.BoothID, source.Count)
		return nil, models.Reject(models.CodeAlreadyRegistered)
	case !errors.Is(err, db.ErrNotFound):
		_ = t.guard.Release(ctx, destCell.CellID, source.BoothDate, destCell.BoothID, source.Count)
		return nil, err
	}

	op := &models.TransferOp{
		ID:                uuid.NewString(),
		QRToken:           qrToken,
		CodeID:            codeID,
		SourceID:          source.ID,
		DestinationID:     destID,
		DestinationCellID: destCell.CellID,
		Step:              models.TransferPending,
		AdminID:           adminID,
		StartedAt:         time.Now().Unix(),
	}
	if err := t.store.Collection(db.TransfersCollection).Put(ctx, op.ID, op); err != nil {
		// nothing written yet except the seat hold; give it back
		_ = t.guard.Release(ctx, destCell.CellID, source.BoothDate, destCell.BoothID, source.Count)
		return nil, err
	}

	if err := t.complete(ctx, op, source); err != nil {
		return nil, err
	}

	var dest models.Registration
	if err := regs.Get(ctx, destID, &dest); err != nil {
		return nil, err
	}
	return &TransferResult{Registration: dest, Scenario: models.ScenarioOnTime}, nil
}

// pendingOp finds an unfinished run for this token, if one exists.
func (t *Transferer) pendingOp(ctx context.Context, codeID, qrToken string) *models.TransferOp {
	var ops []models.TransferOp
	err := t.store.Collection(db.TransfersCollection).Find(ctx, db.Filter{
		"codeId":  codeID,
		"qrToken": qrToken,
	}, &ops)
	if err != nil {
		return nil
	}
	for i := range ops {
		if ops[i].Step != models.TransferDone {
			return &ops[i]
		}
	}
	return nil
}

// complete drives a transfer op through its remaining steps. source may be
// nil on a resumed run; it is only needed while the op is still pending.
func (t *Transferer) complete(ctx context.Context, op *models.TransferOp, source *models.Registration) error {
	regs := t.store.Collection(db.RegistrationsCollection)
	ops := t.store.Collection(db.TransfersCollection)

	if op.Step == models.TransferPending {
		if source == nil {
			var s models.Registration
			if err := regs.Get(ctx, op.SourceID, &s); err != nil {
				return err
			}
			source = &s
		}
		day, err := t.cal.Day(ctx, op.CodeID, source.BoothDate)
		if err != nil {
			return err
		}
		destCell := day.FindCell(op.DestinationCellID)
		if destCell == nil {
			return models.Reject(models.CodeSlotNotFound)
		}

		now := time.Now().Unix()
		dest := *source
		dest.ID = op.DestinationID
		dest.CellID = destCell.CellID
		dest.BoothID = destCell.BoothID
		dest.TransferredFrom = source.CellID
		dest.TransferredFromBoothID = source.BoothID
		dest.TransferredAt = now
		dest.CheckedIn = true
		dest.CheckedInAt = now
		dest.CheckedInBy = op.AdminID
		if err := regs.Put(ctx, dest.ID, dest); err != nil {
			return err
		}
		if err := t.step(ctx, ops, op, models.TransferDestinationWritten); err != nil {
			return err
		}
	}

	if op.Step == models.TransferDestinationWritten {
		var s models.Registration
		switch err := regs.Get(ctx, op.SourceID, &s); {
		case err == nil:
			if err := regs.Delete(ctx, op.SourceID); err != nil {
				return err
			}
			_ = t.guard.Release(ctx, s.CellID, s.BoothDate, s.BoothID, s.Count)
		case !errors.Is(err, db.ErrNotFound):
			return err
		}
		if err := t.step(ctx, ops, op, models.TransferSourceDeleted); err != nil {
			return err
		}
	}

	if op.Step == models.TransferSourceDeleted {
		// the token itself is preserved; only the index target moves
		tokens := t.store.Collection(db.QRTokensCollection)
		err := tokens.Patch(ctx, op.QRToken, map[string]any{"registrationId": op.DestinationID})
		if errors.Is(err, db.ErrNotFound) {
			mapping := models.QRTokenMapping{
				ID:             op.QRToken,
				CodeID:         op.CodeID,
				RegistrationID: op.DestinationID,
				CreatedAt:      time.Now().Unix(),
			}
			err = tokens.Put(ctx, op.QRToken, mapping)
		}
		if err != nil {
			return err
		}
		if err := t.step(ctx, ops, op, models.TransferMappingUpdated); err != nil {
			return err
		}
	}

	if op.Step == models.TransferMappingUpdated {
		if err := t.step(ctx, ops, op, models.TransferDone); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transferer) step(ctx context.Context, ops db.Collection, op *models.TransferOp, next string) error {
	op.Step = next
	return ops.Patch(ctx, op.ID, map[string]any{"step": next})
}
