package response

import "fmt"

// Error is the JSON error envelope returned by every API router
type Error struct {
	StatusCode int         `json:"-"`
	Message    string      `json:"message"`
	Messages   []string    `json:"messages"`
	Result     interface{} `json:"result"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int) *Error {
	return &Error{
		StatusCode: status,
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(500).
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return makeError(400).
		WithMessage("Bad request")
}

func ErrUnauthorized() *Error {
	return makeError(401).
		WithMessage("Unauthorized")
}

func ErrPaymentRequired() *Error {
	return makeError(402).
		WithMessage("Payment required")
}

func ErrForbidden() *Error {
	return makeError(403).
		WithMessage("Forbidden")
}

func ErrNotFound() *Error {
	return makeError(404).
		WithMessage("Requested resources not found")
}

func ErrConflict() *Error {
	return makeError(409).
		WithMessage("Conflict")
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrValidation(err error) *Error {
	return ErrBadRequest().AddMessages("Request validation failed", err.Error())
}

func ErrVerifyToken() *Error {
	return ErrUnexpected().AddMessages("Unable to verify login token")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}

// FieldResult names the request field an error is about
type FieldResult struct {
	Field string `json:"field"`
}

// ErrFieldNotAllowed is returned when a guest fills in a field the book does not collect
func ErrFieldNotAllowed(field string) *Error {
	return ErrForbidden().
		AddMessages("This book does not accept the field: " + field).
		WithResult(FieldResult{Field: field})
}

// ErrPaymentDeclined carries the failed transaction so the client can show the reason
func ErrPaymentDeclined(txn interface{}) *Error {
	return ErrPaymentRequired().
		AddMessages("The payment was declined").
		WithResult(txn)
}
