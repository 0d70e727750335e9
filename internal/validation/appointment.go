package validation

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
)

// ErrValidation matches every write-path validation failure (see Error)
var ErrValidation = errors.New("validation failed")

// Error describes an invalid field of a write.
// Nothing is persisted when a write fails validation.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Is reports ErrValidation as a match.
func (e *Error) Is(target error) bool { return target == ErrValidation }

// DateLayout формат даты приема
const DateLayout = "2006-01-02"

var (
	// TimePattern HH:MM в 24-часовом формате
	TimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

	// PhonePattern допускает ведущий + и 8-15 цифр
	PhonePattern = regexp.MustCompile(`^\+?\d{8,15}$`)
)

// ValidateDate проверяет дату приема.
// raw is the original text when the date could not be normalized.
func ValidateDate(date, raw string) error {
	if date == "" {
		if raw != "" {
			return &Error{Field: "date", Message: fmt.Sprintf("unrecognized date %q", raw)}
		}
		return &Error{Field: "date", Message: "is required"}
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return &Error{Field: "date", Message: fmt.Sprintf("must be YYYY-MM-DD, got %q", date)}
	}
	return nil
}

// ValidateTime проверяет время приема
func ValidateTime(value string) error {
	if value == "" {
		return &Error{Field: "time", Message: "is required"}
	}
	if !TimePattern.MatchString(value) {
		return &Error{Field: "time", Message: fmt.Sprintf("must be HH:MM, got %q", value)}
	}
	return nil
}

// ValidatePhone проверяет телефон, если он указан
func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !PhonePattern.MatchString(phone) {
		return &Error{Field: "phone", Message: fmt.Sprintf("invalid phone number %q", phone)}
	}
	return nil
}

// ValidateAppointment checks an appointment before it is persisted.
// Date and time are mandatory; the first failing field is reported.
func ValidateAppointment(p models.AppointmentPayload, rawDate string) error {
	if err := ValidateDate(p.Date, rawDate); err != nil {
		return err
	}
	if err := ValidateTime(p.Time); err != nil {
		return err
	}
	return ValidatePhone(p.Phone)
}
