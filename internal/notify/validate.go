package notify

import (
	"errors"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateEvent rejects events with missing ids or a payload that does not
// match the event kind.
func ValidateEvent(e models.DomainEvent) error {
	if err := validate.Struct(e); err != nil {
		return AsValidationError(err)
	}
	if e.Payload == nil {
		return NewValidationError("Payload", "is required")
	}
	if e.Payload.EventKind() != e.Kind {
		return NewValidationError("Payload", "%s payload does not match kind %s", e.Payload.EventKind(), e.Kind)
	}
	if err := validate.Struct(e.Payload); err != nil {
		return AsValidationError(err)
	}
	return nil
}

// AsValidationError converts validator field errors into a ValidationError
// naming the first failing field.
func AsValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewValidationError(fe.Field(), "failed on the '%s' rule", fe.Tag())
	}
	return NewValidationError("", "%v", err)
}
