package models

// ---------- Rejection codes ----------

const (
	CodeNotFound                 = "NOT_FOUND"
	CodeCapacityExceeded         = "CAPACITY_EXCEEDED"
	CodePhoneAlreadyRegistered   = "PHONE_ALREADY_REGISTERED"
	CodeMaxRegistrationsPerPhone = "MAX_REGISTRATIONS_PER_PHONE"
	CodeWrongDate                = "WRONG_DATE"
	CodeSameSlot                 = "SAME_SLOT"
	CodeSlotNotFound             = "SLOT_NOT_FOUND"
	CodeAlreadyRegistered        = "ALREADY_REGISTERED"
	CodeRateLimited              = "RATE_LIMITED"
)

// Rejection is a domain refusal with a stable string code. Details carry
// whatever the caller needs to render a useful message (current count,
// effective capacity, available slots).
type Rejection struct {
	Code    string         `json:"errorCode"`
	Details map[string]any `json:"details,omitempty"`
}

func (r *Rejection) Error() string { return r.Code }

// HTTPStatus maps a rejection code onto the transport status the web layer
// should answer with.
func (r *Rejection) HTTPStatus() int {
	switch r.Code {
	case CodeNotFound, CodeSlotNotFound:
		return 404
	case CodeRateLimited:
		return 429
	default:
		return 409
	}
}

func Reject(code string) *Rejection {
	return &Rejection{Code: code}
}

func RejectWith(code string, details map[string]any) *Rejection {
	return &Rejection{Code: code, Details: details}
}

// ---------- Configuration ----------

// Booth is a station hosting one activity cell per time slot on a day.
type Booth struct {
	BoothID               string `json:"boothId" bson:"boothId"`
	Name                  string `json:"name" bson:"name"`
	Capacity              int    `json:"capacity" bson:"capacity"`
	OverbookingPercentage int    `json:"overbookingPercentage" bson:"overbookingPercentage"`
}

// Cell is one bookable activity instance within a booth on a day.
type Cell struct {
	CellID                string `json:"cellId" bson:"cellId"`
	BoothID               string `json:"boothId" bson:"boothId"`
	BoothDate             string `json:"boothDate" bson:"boothDate"` // YYYY-MM-DD
	StartSlotIndex        int    `json:"startSlotIndex" bson:"startSlotIndex"`
	Capacity              *int   `json:"capacity,omitempty" bson:"capacity,omitempty"`
	OverbookingPercentage *int   `json:"overbookingPercentage,omitempty" bson:"overbookingPercentage,omitempty"`
	Title                 string `json:"title" bson:"title"`
	BackgroundColor       string `json:"backgroundColor,omitempty" bson:"backgroundColor,omitempty"`
}

// CalendarConfig is the per-code configuration blob owned by the code
// editor (external); the engine only reads it.
type CalendarConfig struct {
	ID                       string   `json:"id" bson:"id"` // codeId
	Booths                   []Booth  `json:"booths" bson:"booths"`
	TimeSlots                []string `json:"timeSlots" bson:"timeSlots"` // ordered "HH:MM"
	Cells                    []Cell   `json:"cells" bson:"cells"`
	MaxRegistrationsPerPhone int      `json:"maxRegistrationsPerPhone,omitempty" bson:"maxRegistrationsPerPhone,omitempty"`
}

// CapacityConfig is the resolved capacity of one cell.
type CapacityConfig struct {
	Capacity              int `json:"capacity"`
	OverbookingPercentage int `json:"overbookingPercentage"`
}

// ---------- Registrations ----------

const (
	AvatarPhoto = "photo"
	AvatarEmoji = "emoji"
	AvatarNone  = "none"
)

// Registration reserves Count seats in one cell for one visitor. Its id is
// deterministic (visitorId_cellId_boothDate_boothId) so a repeat
// registration overwrites instead of duplicating.
type Registration struct {
	ID        string `json:"id" bson:"id"`
	CodeID    string `json:"codeId" bson:"codeId"`
	VisitorID string `json:"visitorId" bson:"visitorId"`
	CellID    string `json:"cellId" bson:"cellId"`
	BoothID   string `json:"boothId" bson:"boothId"`
	BoothDate string `json:"boothDate" bson:"boothDate"`

	Nickname   string `json:"nickname" bson:"nickname"`
	Phone      string `json:"phone,omitempty" bson:"phone,omitempty"`
	Count      int    `json:"count" bson:"count"`
	AvatarType string `json:"avatarType,omitempty" bson:"avatarType,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`

	QRToken    string `json:"qrToken" bson:"qrToken"`
	IsVerified bool   `json:"isVerified" bson:"isVerified"`

	CheckedIn   bool   `json:"checkedIn" bson:"checkedIn"`
	CheckedInAt int64  `json:"checkedInAt,omitempty" bson:"checkedInAt,omitempty"`
	CheckedInBy string `json:"checkedInBy,omitempty" bson:"checkedInBy,omitempty"`

	RegisteredAt int64 `json:"registeredAt" bson:"registeredAt"`

	TransferredFrom        string `json:"transferredFrom,omitempty" bson:"transferredFrom,omitempty"`
	TransferredFromBoothID string `json:"transferredFromBoothId,omitempty" bson:"transferredFromBoothId,omitempty"`
	TransferredAt          int64  `json:"transferredAt,omitempty" bson:"transferredAt,omitempty"`
}

// QRTokenMapping is a rebuildable secondary index from a visitor-held token
// to its registration; the Registration document stays authoritative.
type QRTokenMapping struct {
	ID             string `json:"id" bson:"id"` // the qrToken itself
	CodeID         string `json:"codeId" bson:"codeId"`
	RegistrationID string `json:"registrationId" bson:"registrationId"`
	CreatedAt      int64  `json:"createdAt" bson:"createdAt"`
}

// SeatCounter tracks committed seats per activity instance; admission is an
// atomic increment on this document.
type SeatCounter struct {
	ID    string `json:"id" bson:"id"` // cellId_boothDate_boothId
	Seats int64  `json:"seats" bson:"seats"`
}

// RegistrationID derives the deterministic document id that makes a
// (visitor, activity instance) pair unique by construction.
func RegistrationID(visitorID, cellID, boothDate, boothID string) string {
	return visitorID + "_" + cellID + "_" + boothDate + "_" + boothID
}

// ActivityKey identifies one activity instance; it keys the seat counter.
// The third component is the booth id, or a weekStartDate for week-scoped
// calendars; the engine treats it opaquely.
func ActivityKey(cellID, boothDate, boothID string) string {
	return cellID + "_" + boothDate + "_" + boothID
}

// ---------- Check-in ----------

// Scenario labels how a scanned registration relates to the door's clock.
type Scenario string

const (
	ScenarioOnTime    Scenario = "ON_TIME"
	ScenarioEarly     Scenario = "EARLY"
	ScenarioLate      Scenario = "LATE"
	ScenarioWrongDate Scenario = "WRONG_DATE"
)

// ScannerContext is what the door scanner knows when it reads a QR.
type ScannerContext struct {
	CurrentDate      string `json:"currentDate"`
	CurrentSlotIndex int    `json:"currentSlotIndex"`
}

// ResolveHint lets a scanner that already knows the registration skip the
// token index.
type ResolveHint struct {
	CodeID         string `json:"codeId"`
	RegistrationID string `json:"registrationId"`
}

// Transfer step markers, persisted so a retried transfer can resume a
// partial run.
const (
	TransferPending            = "pending"
	TransferDestinationWritten = "destination_written"
	TransferSourceDeleted      = "source_deleted"
	TransferMappingUpdated     = "mapping_updated"
	TransferDone               = "done"
)

// TransferOp records one relocate-and-check-in run.
type TransferOp struct {
	ID                string `json:"id" bson:"id"`
	QRToken           string `json:"qrToken" bson:"qrToken"`
	CodeID            string `json:"codeId" bson:"codeId"`
	SourceID          string `json:"sourceId" bson:"sourceId"`
	DestinationID     string `json:"destinationId" bson:"destinationId"`
	DestinationCellID string `json:"destinationCellId" bson:"destinationCellId"`
	Step              string `json:"step" bson:"step"`
	AdminID           string `json:"adminId" bson:"adminId"`
	StartedAt         int64  `json:"startedAt" bson:"startedAt"`
}
