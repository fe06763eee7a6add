package checkin

import (
	"context"
	"errors"
	"testing"

	"festa/db"
	"festa/models"
	"festa/registration"
)

func sameDay() models.ScannerContext {
	return models.ScannerContext{CurrentDate: "2024-06-01", CurrentSlotIndex: 1}
}

func transferRejection(t *testing.T, err error) *models.Rejection {
	t.Helper()
	var rej *models.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection, got %v", err)
	}
	return rej
}

func TestTransferSuccess(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	source := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK1", Count: 2, Nickname: "Dana",
	}, true)

	result, err := NewTransferer(store).Transfer(ctx, "code1", "TOK1", "c2", sameDay(), "admin1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	dest := result.Registration
	if dest.ID != "v1_c2_2024-06-01_b1" {
		t.Fatalf("destination id = %s", dest.ID)
	}
	if !dest.CheckedIn || dest.CheckedInBy != "admin1" || dest.CheckedInAt == 0 {
		t.Fatalf("transfer must check the visitor in: %+v", dest)
	}
	if dest.TransferredFrom != "c1" || dest.TransferredFromBoothID != "b1" || dest.TransferredAt == 0 {
		t.Fatalf("lineage missing: %+v", dest)
	}
	if dest.QRToken != "TOK1" || dest.Nickname != "Dana" || dest.Count != 2 {
		t.Fatalf("attributes must carry over: %+v", dest)
	}
	if result.Scenario != models.ScenarioOnTime {
		t.Fatalf("transferred scenario = %s, want ON_TIME", result.Scenario)
	}

	// source is gone, its seats released, destination seats held
	var gone models.Registration
	if err := store.Collection(db.RegistrationsCollection).Get(ctx, source.ID, &gone); err != db.ErrNotFound {
		t.Fatalf("source should be deleted, got %v", err)
	}
	guard := registration.NewGuard(store)
	if seats := guard.Seats(ctx, "c1", "2024-06-01", "b1"); seats != 0 {
		t.Fatalf("source counter = %d, want 0", seats)
	}
	if seats := guard.Seats(ctx, "c2", "2024-06-01", "b1"); seats != 2 {
		t.Fatalf("destination counter = %d, want 2", seats)
	}

	// the saved QR keeps working: the index now targets the new document
	var mapping models.QRTokenMapping
	if err := store.Collection(db.QRTokensCollection).Get(ctx, "TOK1", &mapping); err != nil {
		t.Fatalf("mapping gone: %v", err)
	}
	if mapping.RegistrationID != dest.ID {
		t.Fatalf("mapping points at %s, want %s", mapping.RegistrationID, dest.ID)
	}

	// the op ran to completion
	var ops []models.TransferOp
	store.Collection(db.TransfersCollection).Find(ctx, db.Filter{"qrToken": "TOK1"}, &ops)
	if len(ops) != 1 || ops[0].Step != models.TransferDone {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestTransferWrongDate(t *testing.T) {
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, true)

	sc := models.ScannerContext{CurrentDate: "2024-06-02", CurrentSlotIndex: 0}
	_, err := NewTransferer(store).Transfer(context.Background(), "code1", "TOK1", "c2", sc, "admin1")
	if transferRejection(t, err).Code != models.CodeWrongDate {
		t.Fatalf("expected WRONG_DATE, got %v", err)
	}
}

func TestTransferSameSlot(t *testing.T) {
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, true)

	_, err := NewTransferer(store).Transfer(context.Background(), "code1", "TOK1", "c1", sameDay(), "admin1")
	if transferRejection(t, err).Code != models.CodeSameSlot {
		t.Fatalf("expected SAME_SLOT, got %v", err)
	}
}

func TestTransferSlotNotFound(t *testing.T) {
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01", QRToken: "TOK1",
	}, true)

	_, err := NewTransferer(store).Transfer(context.Background(), "code1", "TOK1", "c9", sameDay(), "admin1")
	if transferRejection(t, err).Code != models.CodeSlotNotFound {
		t.Fatalf("expected SLOT_NOT_FOUND, got %v", err)
	}
}

func TestTransferUnknownToken(t *testing.T) {
	store := db.NewMemoryStore()
	seedCalendar(t, store)

	_, err := NewTransferer(store).Transfer(context.Background(), "code1", "NOPE", "c2", sameDay(), "admin1")
	if transferRejection(t, err).Code != models.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestTransferCapacityExceededLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)

	// the tight cell holds exactly one seat and it is taken
	seedRegistration(t, store, models.Registration{
		VisitorID: "occupant", CellID: "tight", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK0", Count: 1,
	}, true)
	source := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK1", Count: 2,
	}, true)

	_, err := NewTransferer(store).Transfer(ctx, "code1", "TOK1", "tight", sameDay(), "admin1")
	rej := transferRejection(t, err)
	if rej.Code != models.CodeCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %v", err)
	}
	if rej.Details["effectiveCapacity"] != 1 {
		t.Fatalf("details = %v", rej.Details)
	}

	// a failed transfer changes nothing at the source
	var still models.Registration
	if err := store.Collection(db.RegistrationsCollection).Get(ctx, source.ID, &still); err != nil {
		t.Fatalf("source must survive a failed transfer: %v", err)
	}
	if still.CheckedIn || still.TransferredAt != 0 {
		t.Fatalf("source mutated: %+v", still)
	}
	guard := registration.NewGuard(store)
	if seats := guard.Seats(ctx, "c1", "2024-06-01", "b1"); seats != 2 {
		t.Fatalf("source counter = %d, want 2", seats)
	}
	if seats := guard.Seats(ctx, "tight", "2024-06-01", "b1"); seats != 1 {
		t.Fatalf("destination counter = %d, want 1", seats)
	}
}

func TestTransferAlreadyRegisteredAtDestination(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)

	source := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK1", Count: 1,
	}, true)
	// the same visitor already holds a seat in the destination cell
	seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c2", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK2", Count: 1,
	}, true)

	_, err := NewTransferer(store).Transfer(ctx, "code1", "TOK1", "c2", sameDay(), "admin1")
	if transferRejection(t, err).Code != models.CodeAlreadyRegistered {
		t.Fatalf("expected ALREADY_REGISTERED, got %v", err)
	}

	// original registration unchanged, destination seats not leaked
	var still models.Registration
	if err := store.Collection(db.RegistrationsCollection).Get(ctx, source.ID, &still); err != nil {
		t.Fatalf("source must survive: %v", err)
	}
	guard := registration.NewGuard(store)
	if seats := guard.Seats(ctx, "c2", "2024-06-01", "b1"); seats != 1 {
		t.Fatalf("destination counter = %d, want 1 (no leak)", seats)
	}
}

func TestTransferResumesPartialRun(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	seedCalendar(t, store)
	source := seedRegistration(t, store, models.Registration{
		VisitorID: "v1", CellID: "c1", BoothID: "b1", BoothDate: "2024-06-01",
		QRToken: "TOK1", Count: 2,
	}, true)

	// Simulate a crash after the destination was written but before the
	// source was deleted: op persisted at destination_written.
	guard := registration.NewGuard(store)
	cfg := models.CapacityConfig{Capacity: 10, OverbookingPercentage: 10}
	if ok, _, _ := guard.Acquire(ctx, "c2", "2024-06-01", "b1", 2, cfg); !ok {
		t.Fatal("seed destination seats")
	}
	destID := "v1_c2_2024-06-01_b1"
	dest := source
	dest.ID = destID
	dest.CellID = "c2"
	dest.TransferredFrom = "c1"
	dest.TransferredFromBoothID = "b1"
	dest.TransferredAt = 1
	dest.CheckedIn = true
	dest.CheckedInAt = 1
	dest.CheckedInBy = "admin1"
	store.Collection(db.RegistrationsCollection).Put(ctx, destID, dest)
	op := models.TransferOp{
		ID: "op1", QRToken: "TOK1", CodeID: "code1",
		SourceID: source.ID, DestinationID: destID, DestinationCellID: "c2",
		Step: models.TransferDestinationWritten, AdminID: "admin1", StartedAt: 1,
	}
	store.Collection(db.TransfersCollection).Put(ctx, op.ID, op)

	result, err := NewTransferer(store).Transfer(ctx, "code1", "TOK1", "c2", sameDay(), "admin1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !result.Resumed {
		t.Fatal("expected the partial run to be resumed, not restarted")
	}

	// the remaining steps completed: source gone, seats released, index patched
	var gone models.Registration
	if err := store.Collection(db.RegistrationsCollection).Get(ctx, source.ID, &gone); err != db.ErrNotFound {
		t.Fatalf("source should be deleted on resume, got %v", err)
	}
	if seats := guard.Seats(ctx, "c1", "2024-06-01", "b1"); seats != 0 {
		t.Fatalf("source counter = %d, want 0", seats)
	}
	var mapping models.QRTokenMapping
	store.Collection(db.QRTokensCollection).Get(ctx, "TOK1", &mapping)
	if mapping.RegistrationID != destID {
		t.Fatalf("mapping = %s, want %s", mapping.RegistrationID, destID)
	}
	var done models.TransferOp
	store.Collection(db.TransfersCollection).Get(ctx, "op1", &done)
	if done.Step != models.TransferDone {
		t.Fatalf("op step = %s, want done", done.Step)
	}
}
