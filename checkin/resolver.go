package checkin

import (
	"context"
	"errors"
	"log"
	"time"

	"festa/db"
	"festa/models"
)

// Resolver maps an opaque QR token to its registration. Three tiers, tried
// in order, short-circuiting on the first hit:
//
//  1. direct hint (codeId + registrationId) from a scanner that already
//     knows the document,
//  2. the qrtokens secondary index,
//  3. a fallback equality scan over the registrations themselves.
//
// Tiers 1 and 3 repair a missing index entry on the way out, so a lost or
// stale index never makes a valid token unresolvable.
type Resolver struct {
	store db.Store
}

func NewResolver(store db.Store) *Resolver {
	return &Resolver{store: store}
}

func (res *Resolver) Resolve(ctx context.Context, qrToken string, hint *models.ResolveHint) (*models.Registration, error) {
	regs := res.store.Collection(db.RegistrationsCollection)
	tokens := res.store.Collection(db.QRTokensCollection)

	// Tier 1: direct hint
	if hint != nil && hint.CodeID != "" && hint.RegistrationID != "" {
		var reg models.Registration
		err := regs.Get(ctx, hint.RegistrationID, &reg)
		if err == nil && reg.QRToken == qrToken {
			res.repairMapping(ctx, qrToken, reg.CodeID, reg.ID)
			return &reg, nil
		}
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		// stale or wrong hint: fall through
	}

	// Tier 2: index lookup
	var mapping models.QRTokenMapping
	err := tokens.Get(ctx, qrToken, &mapping)
	if err == nil {
		var reg models.Registration
		switch err := regs.Get(ctx, mapping.RegistrationID, &reg); {
		case err == nil:
			return &reg, nil
		case !errors.Is(err, db.ErrNotFound):
			return nil, err
		}
		// index points at a deleted document: fall through to the scan
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	// Tier 3: fallback scan, one match
	var reg models.Registration
	switch err := regs.FindOne(ctx, db.Filter{"qrToken": qrToken}, &reg); {
	case err == nil:
		res.repairMapping(ctx, qrToken, reg.CodeID, reg.ID)
		return &reg, nil
	case errors.Is(err, db.ErrNotFound):
		return nil, models.Reject(models.CodeNotFound)
	default:
		return nil, err
	}
}

// repairMapping writes the index entry if it is missing or points at the
// wrong registration. Best effort; the scan remains the source of truth.
func (res *Resolver) repairMapping(ctx context.Context, qrToken, codeID, registrationID string) {
	tokens := res.store.Collection(db.QRTokensCollection)
	var existing models.QRTokenMapping
	if err := tokens.Get(ctx, qrToken, &existing); err == nil && existing.RegistrationID == registrationID {
		return
	}
	mapping := models.QRTokenMapping{
		ID:             qrToken,
		CodeID:         codeID,
		RegistrationID: registrationID,
		CreatedAt:      time.Now().Unix(),
	}
	if err := tokens.Put(ctx, qrToken, mapping); err != nil {
		log.Println("qr token index repair failed:", err)
	}
}
