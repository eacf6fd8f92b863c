package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/event-reservation/internal/apperr"
)

var validate = validator.New()

// eventFields are the persisted attributes of an event as they will be
// written, after an update has been merged onto the stored row.
type eventFields struct {
	Title       string    `validate:"required,max=200"`
	Description string    `validate:"max=5000"`
	Location    string    `validate:"required,max=255"`
	ScheduledAt time.Time `validate:"required"`
}

func validateFields(f eventFields) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("invalid event")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Invalid("%s", strings.Join(msgs, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	name := fieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

func fieldName(field string) string {
	switch field {
	case "ScheduledAt":
		return "scheduled_at"
	default:
		return strings.ToLower(field)
	}
}

func validateCapacity(c *int) error {
	if c != nil && *c <= 0 {
		return apperr.Invalid("capacity must be positive")
	}
	return nil
}
