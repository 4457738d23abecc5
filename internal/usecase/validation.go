package usecase

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const maxIdentifierLength = 255

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateRecordBridgeInput(input RecordBridgeInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(input.Email) == "" {
		errors = append(errors, ValidationError{"email", "is required"})
	} else if !isValidEmail(input.Email) {
		errors = append(errors, ValidationError{"email", "is invalid"})
	}

	errors = append(errors, validateVisitorID(input.VisitorID, true)...)
	return errors
}

func ValidateCreateTouchpointInput(input CreateTouchpointInput) []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateVisitorID(input.VisitorID, true)...)

	if strings.TrimSpace(input.EventType) == "" {
		errors = append(errors, ValidationError{"event_type", "is required"})
	} else if len(input.EventType) > 100 {
		errors = append(errors, ValidationError{"event_type", "must not exceed 100 characters"})
	}

	if input.LeadID != "" && !isValidID(input.LeadID) {
		errors = append(errors, ValidationError{"lead_id", "is not a valid id"})
	}

	if len(input.PageURL) > 2048 {
		errors = append(errors, ValidationError{"page_url", "must not exceed 2048 characters"})
	}
	return errors
}

func validateVisitorID(visitorID string, required bool) []ValidationError {
	v := strings.TrimSpace(visitorID)
	if v == "" {
		if required {
			return []ValidationError{{"visitor_id", "is required"}}
		}
		return nil
	}
	if len(v) > maxIdentifierLength {
		return []ValidationError{{"visitor_id", "must not exceed 255 characters"}}
	}
	return nil
}

// isValidID evita mandar ids malformados ao Postgres (colunas UUID).
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return false
	}
	// Rejeita "Nome <email>": só aceitamos o endereço puro.
	return addr.Name == "" && len(addr.Address) <= maxIdentifierLength
}

func validationFailed(errs []ValidationError) error {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+" ("+e.Message+")")
	}
	return &DomainError{
		Code:    CodeValidation,
		Message: "validation failed: " + strings.Join(parts, ", "),
	}
}
