package checkin

import (
	"festa/models"
)

// Classify labels how a scanned registration relates to the door's current
// date and slot. Pure; the result only drives operator messaging and the
// decision to offer a transfer. A wrong date dominates any slot comparison.
func Classify(reg *models.Registration, startSlotIndex int, sc models.ScannerContext) models.Scenario {
	if reg.BoothDate != sc.CurrentDate {
		return models.ScenarioWrongDate
	}
	switch {
	case startSlotIndex == sc.CurrentSlotIndex:
		return models.ScenarioOnTime
	case startSlotIndex > sc.CurrentSlotIndex:
		return models.ScenarioEarly
	default:
		return models.ScenarioLate
	}
}
