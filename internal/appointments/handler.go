package appointments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-intake/internal/http/middleware"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// SlipRenderer turns a confirmed appointment into the printable HTML slip.
type SlipRenderer interface {
	RenderHTML(appt *Appointment) (string, error)
}

// Handler handles HTTP requests for appointments
type Handler struct {
	svc    *Service
	slips  SlipRenderer
	logger *logging.Logger
}

// NewHandler creates a new appointments handler
func NewHandler(svc *Service, slips SlipRenderer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, slips: slips, logger: logger}
}

// maxRequestBytes caps JSON bodies on the write endpoints.
const maxRequestBytes = 64 << 10

type rejectRequest struct {
	RejectionReason string `json:"rejectionReason"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Book handles POST /appointments/book
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Not authorized, no token"})
		return
	}
	var intake Intake
	if err := decodeBody(w, r, &intake); err != nil {
		h.logger.Warn("failed to decode appointment request", "error", err)
		writeBodyError(w, err)
		return
	}
	if intake.Email == "" {
		intake.Email = principal.Email
	}
	appt, err := h.svc.Submit(r.Context(), principal.UserID, intake)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListMine handles GET /appointments/my
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Not authorized, no token"})
		return
	}
	list, err := h.svc.ListMine(r.Context(), principal.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// Get handles GET /appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Not authorized, no token"})
		return
	}
	appt, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), Viewer{UserID: principal.UserID, Admin: principal.Admin})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListAll handles GET /appointments/admin/all
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// Confirm handles PUT /appointments/admin/confirm/{id}
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"), actorID(r))
	h.respond(w, r, appt, err)
}

// Reject handles PUT /appointments/admin/reject/{id}
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBodyError(w, err)
		return
	}
	appt, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), actorID(r), req.RejectionReason)
	h.respond(w, r, appt, err)
}

// NoShow handles PUT /appointments/admin/noshow/{id}
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.MarkNoShow(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, appt, err)
}

// Revert handles PUT /appointments/admin/pending/{id}
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.RevertToPending(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, appt, err)
}

// Resend handles PUT /appointments/admin/resend/{id}
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.ResendConfirmation(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, appt, err)
}

// Delete handles DELETE /appointments/admin/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Appointment removed"})
}

// Verify handles GET /appointments/verify/{id}
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Slip handles GET /appointments/slip/{id}
func (h *Handler) Slip(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.SlipSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.slips.RenderHTML(appt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// CheckIn handles PUT /appointments/checkin/{id}
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.CheckIn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt.Public())
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, appt *Appointment, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// writeError maps lifecycle errors onto HTTP statuses. Anything unrecognised
// is a persistence failure and only the generic message leaves the server.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: verr.Message})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Appointment not found"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Not authorized to view this appointment"})
	case errors.Is(err, ErrAlreadyConfirmed):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Appointment is already confirmed"})
	case errors.Is(err, ErrNotConfirmed):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Appointment is not confirmed"})
	case errors.Is(err, ErrSlipUnavailable):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Slip is available only after confirmation"})
	default:
		h.logger.Error("appointment request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server Error"})
	}
}

func actorID(r *http.Request) string {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if principal.Email != "" {
		return principal.Email
	}
	return principal.UserID
}

func nonNil(list []*Appointment) []*Appointment {
	if list == nil {
		return []*Appointment{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Message: "Request body too large"})
		return
	}
	writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
}
