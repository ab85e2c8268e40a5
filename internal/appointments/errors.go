package appointments

import "errors"

var (
	// ErrNotFound is returned when no appointment has the requested id.
	ErrNotFound = errors.New("appointment not found")

	// ErrForbidden is returned when the caller neither owns the appointment nor is an admin.
	ErrForbidden = errors.New("not authorized to view this appointment")

	// ErrAlreadyConfirmed guards against confirming twice.
	ErrAlreadyConfirmed = errors.New("appointment is already confirmed")

	// ErrNotConfirmed is returned by operations that require a confirmed appointment.
	ErrNotConfirmed = errors.New("appointment is not confirmed")

	// ErrSlipUnavailable is returned when a slip is requested before a reference ID exists.
	ErrSlipUnavailable = errors.New("slip is available only after confirmation")

	// ErrDuplicateReference is returned when the store rejects a reference ID already in use.
	ErrDuplicateReference = errors.New("reference id already assigned")
)

// ValidationError carries a human readable reason a submission was refused.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
