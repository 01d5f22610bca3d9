package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// Field error codes.
const (
	CodeRequired        = "required"
	CodeInvalid         = "invalid"
	CodeTooLong         = "too_long"
	CodeNegative        = "negative"
	CodeBalanceExceeded = "balance_exceeded"
	CodeDuplicate       = "duplicate"
	CodeNotAllowed      = "not_allowed"
)

// ErrBalanceExceeded matches (via errors.Is) any validation error in which an
// entered quantity exceeds the balance still claimable against the reference.
var ErrBalanceExceeded = errors.New("entered quantity exceeds balance")

// PhoneRegion is the default region used to parse driver phone numbers that
// carry no country prefix.
var PhoneRegion = "IN"

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Is lets errors.Is(err, ErrBalanceExceeded) find a balance violation.
func (e *ValidationError) Is(target error) bool {
	if target != ErrBalanceExceeded {
		return false
	}
	for _, fe := range e.Errors {
		if fe.Code == CodeBalanceExceeded {
			return true
		}
	}
	return false
}

// Add appends a field error.
func (e *ValidationError) Add(field, code, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: message})
}

// Merge appends the field errors of err when it is a *ValidationError and
// reports whether it was one. A nil err is merged as nothing.
func (e *ValidationError) Merge(err error) bool {
	if err == nil {
		return true
	}
	var other *ValidationError
	if !errors.As(err, &other) {
		return false
	}
	e.Errors = append(e.Errors, other.Errors...)
	return true
}

// Err returns e when it holds errors and nil otherwise.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ItemField returns the field path used for errors on a line item.
func ItemField(index int, field string) string {
	return fmt.Sprintf("items[%d].%s", index, field)
}

// ValidateStructure checks a header and its items for structural violations:
// required fields, enum values, item presence for kinds that need items,
// non-negative entered quantities and check-out consistency.
// It returns a *ValidationError if any rules fail, or nil if the document is valid.
// Quantity rules that depend on the entry mode live in package quantity.
func ValidateStructure(h *Header, items []Item) error {
	var ve ValidationError

	if !h.Kind.IsValid() {
		ve.Add("kind", CodeInvalid, fmt.Sprintf("invalid value %q", h.Kind))
	} else if h.Details == nil {
		ve.Add("details", CodeRequired, "is required")
	} else if h.Details.Kind() != h.Kind {
		ve.Add("details", CodeInvalid, fmt.Sprintf("details for %s on a %s entry", h.Details.Kind(), h.Kind))
	} else if !h.Kind.AllowsManual() && h.ReferenceKind() == ReferenceNone {
		ve.Add("reference_number", CodeRequired, fmt.Sprintf("%s entries are posted against a %s", h.Kind, h.Kind.ReferenceKind()))
	}

	if !h.Status.IsValid() {
		ve.Add("status", CodeInvalid, fmt.Sprintf("invalid value %q", h.Status))
	}

	if err := structValidator.Struct(h); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating header: %w", err)
		}
		for _, fe := range verrs {
			ve.Errors = append(ve.Errors, fieldErrorFromTag(fe))
		}
	}

	if phone := strings.TrimSpace(h.Vehicle.DriverPhone); phone != "" {
		if err := validatePhone(phone); err != nil {
			ve.Add("vehicle.driver_phone", CodeInvalid, err.Error())
		}
	}

	if h.CheckInAt.IsZero() {
		ve.Add("check_in_at", CodeRequired, "is required")
	}
	switch {
	case h.Status == StatusExited && h.CheckOutAt == nil:
		ve.Add("check_out_at", CodeRequired, "is required when status is exited")
	case h.Status != StatusExited && h.CheckOutAt != nil:
		ve.Add("check_out_at", CodeNotAllowed, "is only set by the exit action")
	case h.CheckOutAt != nil && h.CheckOutAt.Before(h.CheckInAt):
		ve.Add("check_out_at", CodeInvalid, "must not be before check-in")
	}

	if h.Status == StatusCancelled {
		if strings.TrimSpace(h.CancelReason) == "" {
			ve.Add("cancel_reason", CodeRequired, "is required when status is cancelled")
		}
		if h.CancelledAt == nil {
			ve.Add("cancelled_at", CodeRequired, "is required when status is cancelled")
		}
	}

	if h.Kind.RequiresItems() && len(items) == 0 {
		ve.Add("items", CodeRequired, fmt.Sprintf("%s entries need at least one item", h.Kind))
	}

	seen := make(map[int]bool, len(items))
	for i, it := range items {
		if it.LineNo <= 0 {
			ve.Add(ItemField(i, "line_no"), CodeInvalid, "must be positive")
		} else if seen[it.LineNo] {
			ve.Add(ItemField(i, "line_no"), CodeDuplicate, fmt.Sprintf("line %d appears more than once", it.LineNo))
		}
		seen[it.LineNo] = true

		if strings.TrimSpace(it.MaterialCode) == "" && strings.TrimSpace(it.MaterialDescription) == "" {
			ve.Add(ItemField(i, "material_code"), CodeRequired, "material code or description is required")
		}
		if it.EnteredQty.Valid && it.EnteredQty.Decimal.IsNegative() {
			ve.Add(ItemField(i, "entered_qty"), CodeNegative, "must not be negative")
		}
		if it.Packing != "" && !it.Packing.IsValid() {
			ve.Add(ItemField(i, "packing"), CodeInvalid, fmt.Sprintf("invalid value %q", it.Packing))
		}
	}

	return ve.Err()
}

func fieldErrorFromTag(fe validator.FieldError) FieldError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return FieldError{Field: field, Code: CodeRequired, Message: "is required"}
	case "max":
		return FieldError{Field: field, Code: CodeTooLong, Message: "must be at most " + fe.Param() + " characters"}
	case "alphanum":
		return FieldError{Field: field, Code: CodeInvalid, Message: "must be alphanumeric"}
	}
	return FieldError{Field: field, Code: CodeInvalid, Message: "failed " + fe.Tag() + " check"}
}

func validatePhone(phone string) error {
	p, err := libphonenumber.Parse(phone, PhoneRegion)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}
