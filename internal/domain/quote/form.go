package quote

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
)

// Field names reported in validation errors.
const (
	FieldServiceType = "service_type"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldDuration    = "duration"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FormState mirrors the quote form. The core reads ServiceType, Date and Time
// and writes back the resolved addresses and coordinates.
type FormState struct {
	Origin            string `json:"origin"`
	Destination       string `json:"destination"`
	OriginCoords      string `json:"origin_coords"`
	DestinationCoords string `json:"destination_coords"`
	ServiceType       string `json:"service_type" validate:"required"`
	Date              string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time              string `json:"time" validate:"required,datetime=15:04"`
}

// Options extracts the pricing options from the form.
func (f FormState) Options() Options {
	return Options{ServiceType: f.ServiceType, TimeOfDay: f.Time}
}

// Validate returns the names of missing or malformed fields.
func (f FormState) Validate() []string {
	return invalidFields(validate.Struct(f))
}

// Options are the non-duration inputs of a quote.
type Options struct {
	ServiceType string `json:"service_type" validate:"required"`
	TimeOfDay   string `json:"time" validate:"required,datetime=15:04"`
}

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// NewValidationError builds the error returned when quote inputs are missing or invalid.
func NewValidationError(fields ...string) *domain.AppError {
	return domain.NewValidationError(
		"missing or invalid quote fields: "+strings.Join(fields, ", "),
		fields...,
	)
}

func invalidFields(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		if !seen[fe.Field()] {
			seen[fe.Field()] = true
			fields = append(fields, fe.Field())
		}
	}
	return fields
}
