package projects

import (
	"fmt"
	"regexp"
	"strings"

	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"

	"github.com/go-playground/validator/v10"
)

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tagformat", func(fl validator.FieldLevel) bool {
		return tagPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return shared.TaskStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("taskpriority", func(fl validator.FieldLevel) bool {
		return shared.TaskPriority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return project.Permission(fl.Field().String()).Valid()
	})
	return v
}

// check validates in and converts tag failures into one validation error
// listing every offending field.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return cerrors.Validation(cerrors.CodeValidationFailed, "invalid input").WithCause(err).Build()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), message(e)))
	}
	return cerrors.Validation(cerrors.CodeValidationFailed, "invalid input").
		WithDetails(strings.Join(msgs, "; ")).
		Build()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "tagformat":
		return "must contain only letters, numbers, spaces, hyphens and underscores"
	case "taskstatus", "taskpriority", "permission":
		return fmt.Sprintf("unknown value %q", e.Value())
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
