package appointments

import (
	"strings"
	"time"
)

// Status is the clinical lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusRejected  Status = "Rejected"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "No-show"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// EmailStatus tracks delivery of the confirmation slip email, independent of Status.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// DefaultRejectionReason is stored when an admin rejects without giving a reason.
const DefaultRejectionReason = "Schedule conflict"

// Intake is the clinical form a patient submits. It is stored as one document
// and flattened into the appointment's JSON.
type Intake struct {
	FullName      string `json:"fullName" validate:"required"`
	Age           *int   `json:"age,omitempty" validate:"omitempty,min=0,max=130"`
	Gender        string `json:"gender,omitempty"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	Occupation    string `json:"occupation,omitempty"`
	MaritalStatus string `json:"maritalStatus,omitempty"`

	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`

	EmergencyContactName     string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone    string `json:"emergencyContactPhone,omitempty"`
	EmergencyContactRelation string `json:"emergencyContactRelation,omitempty"`
	FamilyHistory            string `json:"familyHistory,omitempty"`

	PrimaryConcern     string   `json:"primaryConcern" validate:"required"`
	ConcernDuration    string   `json:"concernDuration,omitempty"`
	Symptoms           []string `json:"symptoms,omitempty"`
	SubstanceUse       string   `json:"substanceUse,omitempty"`
	PreviousTreatment  string   `json:"previousTreatment,omitempty"`
	CurrentMedications string   `json:"currentMedications,omitempty"`
	Allergies          string   `json:"allergies,omitempty"`
	MedicalHistory     string   `json:"medicalHistory,omitempty"`
	Severity           string   `json:"severity,omitempty" validate:"omitempty,oneof=Mild Moderate Severe"`
	AdditionalNotes    string   `json:"additionalNotes,omitempty"`

	PreferredDoctor string `json:"preferredDoctor,omitempty"`
	PreferredDate   string `json:"preferredDate,omitempty"`
	PreferredTime   string `json:"preferredTime,omitempty"`
	AppointmentType string `json:"appointmentType,omitempty" validate:"omitempty,oneof='New Consultation' Follow-up"`
	Mode            string `json:"mode,omitempty" validate:"omitempty,oneof=In-person Online"`
}

// Normalize trims whitespace from the free-text identity fields.
func (in *Intake) Normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.PrimaryConcern = strings.TrimSpace(in.PrimaryConcern)
}

// Appointment is the persisted record.
type Appointment struct {
	ID            string  `json:"id"`
	ReferenceID   *string `json:"appointmentId"`
	UserID        string  `json:"userId"`
	Intake
	Status          Status      `json:"status"`
	ConfirmedBy     *string     `json:"confirmedBy"`
	ConfirmedAt     *time.Time  `json:"confirmedAt"`
	RejectionReason string      `json:"rejectionReason,omitempty"`
	CheckedIn       bool        `json:"checkedIn"`
	CheckedInAt     *time.Time  `json:"checkedInAt"`
	EmailStatus     EmailStatus `json:"emailStatus"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Reference returns the reference ID or "" when none is assigned.
func (a *Appointment) Reference() string {
	if a == nil || a.ReferenceID == nil {
		return ""
	}
	return *a.ReferenceID
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ReferenceID = cloneString(a.ReferenceID)
	cp.ConfirmedBy = cloneString(a.ConfirmedBy)
	cp.ConfirmedAt = cloneTime(a.ConfirmedAt)
	cp.CheckedInAt = cloneTime(a.CheckedInAt)
	if a.Age != nil {
		age := *a.Age
		cp.Age = &age
	}
	if a.Symptoms != nil {
		cp.Symptoms = append([]string(nil), a.Symptoms...)
	}
	return &cp
}

// Confirm assigns the reference ID and moves the appointment to Confirmed.
// Confirming an already confirmed appointment is rejected and leaves it untouched.
func (a *Appointment) Confirm(referenceID, by string, at time.Time) error {
	if a.Status == StatusConfirmed {
		return ErrAlreadyConfirmed
	}
	ref := referenceID
	actor := by
	when := at.UTC()
	a.ReferenceID = &ref
	a.Status = StatusConfirmed
	a.ConfirmedBy = &actor
	a.ConfirmedAt = &when
	a.EmailStatus = EmailPending
	a.UpdatedAt = when
	return nil
}

// Reject moves the appointment to Rejected from any state.
func (a *Appointment) Reject(reason, by string, at time.Time) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	actor := by
	when := at.UTC()
	a.Status = StatusRejected
	a.RejectionReason = reason
	a.ConfirmedBy = &actor
	a.ConfirmedAt = &when
	a.UpdatedAt = when
}

// RevertToPending clears every confirmation artifact together.
func (a *Appointment) RevertToPending(at time.Time) {
	a.Status = StatusPending
	a.ReferenceID = nil
	a.ConfirmedBy = nil
	a.ConfirmedAt = nil
	a.UpdatedAt = at.UTC()
}

// MarkNoShow moves the appointment to No-show from any state.
func (a *Appointment) MarkNoShow(at time.Time) {
	a.Status = StatusNoShow
	a.UpdatedAt = at.UTC()
}

// CheckIn records arrival. Only confirmed appointments can be checked in.
func (a *Appointment) CheckIn(at time.Time) error {
	if a.Status != StatusConfirmed {
		return ErrNotConfirmed
	}
	when := at.UTC()
	a.CheckedIn = true
	a.CheckedInAt = &when
	a.UpdatedAt = when
	return nil
}

// PublicView is the reduced projection served to the unauthenticated verify link.
type PublicView struct {
	ReferenceID     *string    `json:"appointmentId"`
	FullName        string     `json:"fullName"`
	PreferredDoctor string     `json:"preferredDoctor,omitempty"`
	PreferredDate   string     `json:"preferredDate,omitempty"`
	PreferredTime   string     `json:"preferredTime,omitempty"`
	AppointmentType string     `json:"appointmentType,omitempty"`
	Mode            string     `json:"mode,omitempty"`
	Status          Status     `json:"status"`
	CheckedIn       bool       `json:"checkedIn"`
	CheckedInAt     *time.Time `json:"checkedInAt"`
}

// Public returns the verification projection.
func (a *Appointment) Public() PublicView {
	return PublicView{
		ReferenceID:     cloneString(a.ReferenceID),
		FullName:        a.FullName,
		PreferredDoctor: a.PreferredDoctor,
		PreferredDate:   a.PreferredDate,
		PreferredTime:   a.PreferredTime,
		AppointmentType: a.AppointmentType,
		Mode:            a.Mode,
		Status:          a.Status,
		CheckedIn:       a.CheckedIn,
		CheckedInAt:     cloneTime(a.CheckedInAt),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
