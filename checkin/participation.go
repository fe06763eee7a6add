package checkin

import (
	"context"
	"time"

	"festa/db"
	"festa/models"
	"festa/utils"
)

// Counter tallies same-day check-ins per phone number. Reporting and
// anti-abuse signal only; admission decisions never consult it.
type Counter struct {
	store db.Store
}

func NewCounter(store db.Store) *Counter {
	return &Counter{store: store}
}

// CountToday counts today's checked-in registrations for a phone.
func (c *Counter) CountToday(ctx context.Context, codeID, phone string) (int, error) {
	return c.CountOn(ctx, codeID, phone, time.Now().Format("2006-01-02"))
}

// CountOn counts checked-in registrations for a phone on one calendar day.
func (c *Counter) CountOn(ctx context.Context, codeID, phone, date string) (int, error) {
	target := utils.NormalizePhone(phone)
	if target == "" {
		return 0, nil
	}

	var regs []models.Registration
	err := c.store.Collection(db.RegistrationsCollection).Find(ctx, db.Filter{
		"codeId":    codeID,
		"boothDate": date,
		"checkedIn": true,
	}, &regs)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range regs {
		if utils.NormalizePhone(r.Phone) == target {
			count++
		}
	}
	return count, nil
}
