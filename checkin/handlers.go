package checkin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"festa/calendar"
	"festa/db"
	"festa/live"
	"festa/middleware"
	"festa/models"
	"festa/utils"

	"github.com/julienschmidt/httprouter"
)

// API serves the door-scanner endpoint.
type API struct {
	store      db.Store
	cal        *calendar.Service
	resolver   *Resolver
	transferer *Transferer
	counter    *Counter
}

func NewAPI(store db.Store) *API {
	return &API{
		store:      store,
		cal:        calendar.NewService(store),
		resolver:   NewResolver(store),
		transferer: NewTransferer(store),
		counter:    NewCounter(store),
	}
}

type checkinRequest struct {
	QRToken           string              `json:"qrToken"`
	Action            string              `json:"action"` // query | checkin | transfer
	DestinationCellID string              `json:"destinationCellId"`
	Scanner           *scannerInput       `json:"scannerContext"`
	Hint              *models.ResolveHint `json:"hint"`
}

// scannerInput distinguishes "scanner did not send a slot index" from
// "scanner is at slot 0".
type scannerInput struct {
	CurrentDate      string `json:"currentDate"`
	CurrentSlotIndex *int   `json:"currentSlotIndex"`
}

// POST /api/calendar/:codeId/checkin
func (api *API) Checkin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	codeID := ps.ByName("codeId")
	adminID := middleware.UserIDFromContext(r.Context())

	var req checkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.QRToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "qrToken required")
		return
	}
	token, err := ParseQRPayload(req.QRToken)
	if err != nil {
		api.respondRejection(w, models.Reject(models.CodeNotFound))
		return
	}
	if req.Action == "" {
		req.Action = "query"
	}

	reg, err := api.resolver.Resolve(r.Context(), token, req.Hint)
	if err != nil {
		api.respondRejection(w, err)
		return
	}

	day, err := api.cal.Day(r.Context(), codeID, reg.BoothDate)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	var cell *models.Cell
	startSlotIndex := 0
	if day != nil {
		if cell = day.FindCell(reg.CellID); cell != nil {
			startSlotIndex = cell.StartSlotIndex
		}
	}

	sc := api.scannerContext(req.Scanner, day)
	scenario := Classify(reg, startSlotIndex, sc)
	alreadyCheckedIn := reg.CheckedIn

	switch req.Action {
	case "query":
		// no side effects

	case "checkin":
		// The operator has already decided to let the party in; the
		// admission guard is not re-invoked at the door.
		if !reg.CheckedIn {
			fields := map[string]any{
				"checkedIn":   true,
				"checkedInAt": time.Now().Unix(),
				"checkedInBy": adminID,
			}
			if err := api.store.Collection(db.RegistrationsCollection).Patch(r.Context(), reg.ID, fields); err != nil {
				utils.RespondWithError(w, http.StatusInternalServerError, "db error")
				return
			}
			reg.CheckedIn = true
			reg.CheckedInAt = time.Now().Unix()
			reg.CheckedInBy = adminID
		}

	case "transfer":
		if req.DestinationCellID == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "destinationCellId required")
			return
		}
		result, err := api.transferer.Transfer(r.Context(), codeID, token, req.DestinationCellID, sc, adminID)
		if err != nil {
			api.respondRejection(w, err)
			return
		}
		live.BroadcastAvailability(codeID, result.Registration.BoothDate)
		api.respondState(w, r, codeID, &result.Registration, day, result.Scenario, alreadyCheckedIn, true)
		return

	default:
		utils.RespondWithError(w, http.StatusBadRequest, "unknown action")
		return
	}

	api.respondState(w, r, codeID, reg, day, scenario, alreadyCheckedIn, false)
}

func (api *API) respondState(w http.ResponseWriter, r *http.Request, codeID string, reg *models.Registration, day *calendar.DayConfig, scenario models.Scenario, alreadyCheckedIn, transferred bool) {
	participations, err := api.counter.CountToday(r.Context(), codeID, reg.Phone)
	if err != nil {
		participations = 0
	}

	var activity any
	if day != nil {
		if cell := day.FindCell(reg.CellID); cell != nil {
			activity = utils.M{
				"cell":  cell,
				"booth": day.Booth(cell.BoothID),
			}
		}
	}

	out := *reg
	out.Phone = utils.MaskPhone(out.Phone)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"registration":        out,
		"activity":            activity,
		"alreadyCheckedIn":    alreadyCheckedIn,
		"scenario":            scenario,
		"participationsToday": participations,
		"transferred":         transferred,
	})
}

// scannerContext fills in whatever the scanner did not send: today's date
// and the slot index derived from the wall clock.
func (api *API) scannerContext(in *scannerInput, day *calendar.DayConfig) models.ScannerContext {
	out := models.ScannerContext{}
	if in != nil {
		out.CurrentDate = in.CurrentDate
	}
	if out.CurrentDate == "" {
		out.CurrentDate = time.Now().Format("2006-01-02")
	}
	if in != nil && in.CurrentSlotIndex != nil {
		out.CurrentSlotIndex = *in.CurrentSlotIndex
	} else if day != nil {
		out.CurrentSlotIndex = calendar.SlotIndexAt(day.TimeSlots, time.Now())
	}
	return out
}

func (api *API) respondRejection(w http.ResponseWriter, err error) {
	var rej *models.Rejection
	if errors.As(err, &rej) {
		utils.RespondWithJSON(w, rej.HTTPStatus(), utils.M{
			"errorCode": rej.Code,
			"details":   rej.Details,
		})
		return
	}
	utils.RespondWithError(w, http.StatusInternalServerError, "db error")
}
