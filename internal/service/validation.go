package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hvac_dispatch/backend/internal/models"
)

var validate = validator.New()

// checkStruct runs the struct's validate tags and reports the first failure as a ValidationError.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(toSnake(fe.Field()), "failed on '"+fe.Tag()+"'")
	}
	return invalid("", err.Error())
}

func validateCriteria(c models.AssignmentCriteria) error {
	if c.EstimatedDurationMinutes <= 0 {
		return invalid("estimated_duration_minutes", "must be positive")
	}
	return checkStruct(c)
}

func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
