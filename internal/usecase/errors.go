package usecase

import "errors"

const (
	CodeInvalidCriteria = "INVALID_CRITERIA"
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidMerge    = "INVALID_MERGE"
	CodeAlreadyMerged   = "ALREADY_MERGED"
	CodeStorage         = "STORAGE_ERROR"
)

// DomainError é erro de regra de negócio: o chamador mandou algo inválido.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// TechnicalError embrulha falhas de infraestrutura (banco, fila).
type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TechnicalError) Unwrap() error {
	return e.Err
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}

// ErrorCode devolve o código de um DomainError ou TechnicalError, ou "".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	var te *TechnicalError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func invalidCriteria() error {
	return &DomainError{Code: CodeInvalidCriteria, Message: "at least one of email or visitor_id is required"}
}

func notFound(what string) error {
	return &DomainError{Code: CodeNotFound, Message: what + " not found"}
}

func storageError(op string, err error) error {
	return &TechnicalError{Code: CodeStorage, Message: op, Err: err}
}
