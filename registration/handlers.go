package registration

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"festa/calendar"
	"festa/db"
	"festa/filemgr"
	"festa/live"
	"festa/models"
	"festa/utils"

	"github.com/julienschmidt/httprouter"
)

// API serves the visitor-facing registration endpoints.
type API struct {
	store db.Store
	cal   *calendar.Service
	guard *Guard
}

func NewAPI(store db.Store) *API {
	return &API{
		store: store,
		cal:   calendar.NewService(store),
		guard: NewGuard(store),
	}
}

// Guard exposes the admission guard to collaborating packages.
func (api *API) Guard() *Guard { return api.guard }

type registerRequest struct {
	VisitorID  string                 `json:"visitorId"`
	CellID     string                 `json:"cellId"`
	BoothID    string                 `json:"boothId"`
	BoothDate  string                 `json:"boothDate"`
	Nickname   string                 `json:"nickname"`
	Phone      string                 `json:"phone"`
	Count      int                    `json:"count"`
	AvatarType string                 `json:"avatarType"`
	AvatarURL  string                 `json:"avatarUrl"`
	Capacity   *models.CapacityConfig `json:"capacityCfg"`
}

// POST /api/calendar/:codeId/register
func (api *API) Register(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	codeID := ps.ByName("codeId")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if codeID == "" || req.VisitorID == "" || req.CellID == "" || req.BoothDate == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	day, err := api.cal.Day(r.Context(), codeID, req.BoothDate)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "calendar not found")
		return
	}
	cell := day.FindCell(req.CellID)
	if cell == nil {
		api.respondRejection(w, models.Reject(models.CodeSlotNotFound))
		return
	}
	boothID := req.BoothID
	if boothID == "" {
		boothID = cell.BoothID
	}
	capacityCfg := day.CapacityFor(cell)
	if req.Capacity != nil {
		capacityCfg = *req.Capacity
	}

	cfg, err := api.cal.Config(r.Context(), codeID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}

	admission, err := api.guard.Admit(r.Context(), AdmitRequest{
		CodeID:         codeID,
		VisitorID:      req.VisitorID,
		CellID:         req.CellID,
		BoothID:        boothID,
		BoothDate:      req.BoothDate,
		Phone:          req.Phone,
		RequestedCount: ClampCount(req.Count),
		Capacity:       capacityCfg,
		MaxPerPhone:    calendar.MaxRegistrationsPerPhone(cfg),
	})
	if err != nil {
		api.respondRejection(w, err)
		return
	}

	avatarType := req.AvatarType
	if avatarType == "" {
		avatarType = models.AvatarNone
	}
	reg := models.Registration{
		ID:           models.RegistrationID(req.VisitorID, req.CellID, req.BoothDate, boothID),
		CodeID:       codeID,
		VisitorID:    req.VisitorID,
		CellID:       req.CellID,
		BoothID:      boothID,
		BoothDate:    req.BoothDate,
		Nickname:     req.Nickname,
		Phone:        req.Phone,
		Count:        ClampCount(req.Count),
		AvatarType:   avatarType,
		AvatarURL:    req.AvatarURL,
		QRToken:      MintQRToken(),
		RegisteredAt: time.Now().Unix(),
	}

	regs := api.store.Collection(db.RegistrationsCollection)
	if err := regs.Put(r.Context(), reg.ID, reg); err != nil {
		// give the reserved seats back before failing
		_ = api.guard.Release(r.Context(), reg.CellID, reg.BoothDate, reg.BoothID, reg.Count)
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}

	tokens := api.store.Collection(db.QRTokensCollection)
	if prior := admission.Prior; prior != nil && prior.QRToken != reg.QRToken {
		// the overwritten registration's token must stop resolving
		_ = tokens.Delete(r.Context(), prior.QRToken)
	}
	mapping := models.QRTokenMapping{
		ID:             reg.QRToken,
		CodeID:         codeID,
		RegistrationID: reg.ID,
		CreatedAt:      time.Now().Unix(),
	}
	if err := tokens.Put(r.Context(), mapping.ID, mapping); err != nil {
		// the fallback scan still resolves the token; just log it
		log.Println("qr token mapping write failed:", err)
	}

	live.BroadcastAvailability(codeID, reg.BoothDate)

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"accepted":          true,
		"registrationId":    reg.ID,
		"registrationCount": admission.CurrentCount,
		"availableSlots":    admission.AvailableSlots,
		"qrToken":           reg.QRToken,
	})
}

// DELETE /api/calendar/:codeId/register/:cellId?visitorId=&boothDate=&boothId=
// Unconditional: no guard is re-invoked on the way out.
func (api *API) Unregister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	codeID := ps.ByName("codeId")
	cellID := ps.ByName("cellId")
	visitorID := r.URL.Query().Get("visitorId")
	boothDate := r.URL.Query().Get("boothDate")
	boothID := r.URL.Query().Get("boothId")
	if visitorID == "" || boothDate == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing visitorId or boothDate")
		return
	}

	if boothID == "" {
		if day, err := api.cal.Day(r.Context(), codeID, boothDate); err == nil {
			if cell := day.FindCell(cellID); cell != nil {
				boothID = cell.BoothID
			}
		}
	}

	id := models.RegistrationID(visitorID, cellID, boothDate, boothID)
	regs := api.store.Collection(db.RegistrationsCollection)

	var reg models.Registration
	if err := regs.Get(r.Context(), id, &reg); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.respondRejection(w, models.Reject(models.CodeNotFound))
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}

	if err := regs.Delete(r.Context(), id); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "db error")
		return
	}
	_ = api.guard.Release(r.Context(), reg.CellID, reg.BoothDate, reg.BoothID, reg.Count)
	_ = api.store.Collection(db.QRTokensCollection).Delete(r.Context(), reg.QRToken)

	live.BroadcastAvailability(codeID, reg.BoothDate)

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"accepted": true, "deleted": id})
}

type editRequest struct {
	Nickname *string `json:"nickname"`
	Count    *int    `json:"count"`
}

// PATCH /api/calendar/:codeId/registrations/:registrationId
// Operator edit of nickname and party size; a count change re-validates
// against the seat counter.
func (api *API) AdminEdit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	codeID := ps.ByName("codeId")
	regID := ps.ByName("registrationId")

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	regs := api.store.Collection(db.RegistrationsCollection)
	var reg models.Registration
	if err := regs.Get(r.Context(), regID, &reg); err != nil {
		api.respondRejection(w, models.Reject(models.CodeNotFound))
		return
	}

	fields := map[string]any{}
	if req.Nickname != nil {
		fields["nickname"] = *req.Nickname
	}
	if req.Count != nil {
		newCount := ClampCount(*req.Count)
		if newCount != reg.Count {
			day, err := api.cal.Day(r.Context(), codeID, reg.BoothDate)
			if err != nil {
				utils.RespondWithError(w, http.StatusInternalServerError, "db error")
				return
			}
			cell := day.FindCell(reg.CellID)
			if cell == nil {
				api.respondRejection(w, models.Reject(models.CodeSlotNotFound))
				return
			}
			delta := newCount - reg.Count
			ok, effCap, err := api.guard.Acquire(r.Context(), reg.CellID, reg.BoothDate, reg.BoothID, delta, day.CapacityFor(cell))
			if err != nil {
				utils.RespondWithError(w, http.StatusInternalServerError, "db error")
				return
			}
			if !ok {
				current := api.guard.Seats(r.Context(), reg.CellID, reg.BoothDate, reg.BoothID)
				api.respondRejection(w, models.RejectWith(models.CodeCapacityExceeded, map[string]any{
					"currentCount":      current,
					"effectiveCapacity": effCap,
					"availableSlots":    max(effCap-current, 0),
				}))
				return
			}
			fields["count"] = newCount
		}
	}

	if len(fields) > 0 {
		if err := regs.Patch(r.Context(), regID, fields); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "db error")
			return
		}
	}

	if err := regs.Get(r.Context(), regID, &reg); err == nil {
		live.BroadcastAvailability(codeID, reg.BoothDate)
	}
	reg.Phone = utils.MaskPhone(reg.Phone)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true, "registration": reg})
}

// POST /api/calendar/:codeId/avatar: multipart photo upload for
// avatarType=photo registrations.
func (api *API) UploadAvatar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "avatar file missing")
		return
	}
	defer file.Close()

	if !utils.ValidateImageFileType(w, header) {
		return
	}

	url, err := filemgr.SaveAvatar(file, header)
	if err != nil {
		log.Println("avatar save failed:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "could not save avatar")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"avatarUrl": url})
}

// GET /api/calendar/:codeId/day/:boothDate: the availability view the
// calendar UI renders. Read-only.
func (api *API) DayAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	codeID := ps.ByName("codeId")
	boothDate := ps.ByName("boothDate")

	day, err := api.cal.Day(r.Context(), codeID, boothDate)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "calendar not found")
		return
	}

	type cellView struct {
		models.Cell
		ResolvedCapacity  int `json:"resolvedCapacity"`
		EffectiveCapacity int `json:"effectiveCapacity"`
		TakenSeats        int `json:"takenSeats"`
		AvailableSlots    int `json:"availableSlots"`
	}
	cells := make([]cellView, 0, len(day.Cells))
	for _, cell := range day.Cells {
		cfg := day.CapacityFor(&cell)
		effCap := EffectiveCapacity(cfg)
		taken := api.guard.Seats(r.Context(), cell.CellID, cell.BoothDate, cell.BoothID)
		cells = append(cells, cellView{
			Cell:              cell,
			ResolvedCapacity:  cfg.Capacity,
			EffectiveCapacity: effCap,
			TakenSeats:        taken,
			AvailableSlots:    max(effCap-taken, 0),
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"codeId":    codeID,
		"boothDate": boothDate,
		"booths":    day.Booths,
		"timeSlots": day.TimeSlots,
		"cells":     cells,
	})
}

func (api *API) respondRejection(w http.ResponseWriter, err error) {
	var rej *models.Rejection
	if errors.As(err, &rej) {
		utils.RespondWithJSON(w, rej.HTTPStatus(), utils.M{
			"accepted":  false,
			"errorCode": rej.Code,
			"details":   rej.Details,
		})
		return
	}
	utils.RespondWithError(w, http.StatusInternalServerError, "db error")
}
