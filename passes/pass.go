package passes

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"festa/calendar"
	"festa/checkin"
	"festa/db"
	"festa/models"
	"festa/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// API renders the visitor-held booth pass: the QR image itself and a
// printable PDF around it.
type API struct {
	store db.Store
	cal   *calendar.Service
}

func NewAPI(store db.Store) *API {
	return &API{store: store, cal: calendar.NewService(store)}
}

func (api *API) load(r *http.Request, ps httprouter.Params) (*models.Registration, error) {
	regID := ps.ByName("registrationId")
	var reg models.Registration
	if err := api.store.Collection(db.RegistrationsCollection).Get(r.Context(), regID, &reg); err != nil {
		return nil, err
	}
	if codeID := ps.ByName("codeId"); reg.CodeID != codeID {
		return nil, db.ErrNotFound
	}
	return &reg, nil
}

// GET /api/calendar/:codeId/passes/:registrationId/qr.png
func (api *API) QRImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := api.load(r, ps)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "registration not found")
		return
	}

	payload := checkin.GenerateQRPayload(reg.CodeID, reg.QRToken)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "QR generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// GET /api/calendar/:codeId/passes/:registrationId/pass.pdf
func (api *API) PassPDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := api.load(r, ps)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "registration not found")
		return
	}

	title := reg.CellID
	slotTime := ""
	if day, err := api.cal.Day(r.Context(), reg.CodeID, reg.BoothDate); err == nil {
		if cell := day.FindCell(reg.CellID); cell != nil {
			if cell.Title != "" {
				title = cell.Title
			}
			if cell.StartSlotIndex < len(day.TimeSlots) {
				slotTime = day.TimeSlots[cell.StartSlotIndex]
			}
		}
	}

	payload := checkin.GenerateQRPayload(reg.CodeID, reg.QRToken)
	png, err := qrcode.Encode(payload, qrcode.Medium, 512)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "QR generation failed")
		return
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, reg.Nickname, "", 1, "C", false, 0, "")
	line := reg.BoothDate
	if slotTime != "" {
		line = fmt.Sprintf("%s  %s", reg.BoothDate, slotTime)
	}
	pdf.CellFormat(0, 7, line, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Party of %d", reg.Count), "", 1, "C", false, 0, "")

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	qrSize := 60.0
	pdf.ImageOptions("qr", (pageW-qrSize)/2, pdf.GetY()+4, qrSize, qrSize, false, opts, 0, "")

	pdf.SetY(pdf.GetY() + qrSize + 8)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Issued %s", time.Unix(reg.RegisteredAt, 0).Format("2006-01-02 15:04")), "", 1, "C", false, 0, "")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="pass.pdf"`)
	if err := pdf.Output(w); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "PDF generation failed")
	}
}
