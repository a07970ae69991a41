package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
)

var (
	errEmptyBody       = apperr.Validation("Request body is required")
	errInvalidBody     = apperr.Validation("Invalid request body")
	errUnauthenticated = apperr.Unauthorized("Access token is required")
	errInvalidRole     = apperr.Validation("Invalid role")
	errInvalidBirth    = apperr.Validation("dateOfBirth must be a date in YYYY-MM-DD format")
)

var validatorsOnce sync.Once

// registerValidators installs the request validations on gin's validator.
// A failure means a broken tag definition, so it panics at startup.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("handlers: gin validator engine is not go-playground/validator")
		}
		if err := installValidations(v); err != nil {
			panic(fmt.Sprintf("handlers: register validations: %v", err))
		}
	})
}

// installValidations adds the role tag and reports fields by their JSON
// names.
func installValidations(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := models.ParseUserRole(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	return nil
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errInvalidBody
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fmt.Sprintf("%s is required", field))
	case "email":
		return apperr.Validation(fmt.Sprintf("%s must be a valid email address", field))
	case "role":
		return apperr.Validation(fmt.Sprintf("%s must be one of STUDENT, TUTOR, PARENT, ADMIN", field))
	case "min":
		return apperr.Validation(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return apperr.Validation(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	default:
		return apperr.Validation(fmt.Sprintf("%s is invalid", field))
	}
}

var birthDateLayouts = []string{"2006-01-02", time.RFC3339}

func parseBirthDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errInvalidBirth
}
