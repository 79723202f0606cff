package event

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/go-playground/validator/v10"
)

const (
	maxNameLen        = 48
	maxDescriptionLen = 2048
	minAdminSecretLen = 8
	minGuestSecretLen = 4
	minEventIDLen     = 3
)

var (
	slugRegexp        = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	mimePatternRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]*/(\*|[a-z0-9][a-z0-9.+-]*)$`)

	// Slugs that collide with routing or static prefixes.
	reservedEventIDs = map[string]struct{}{
		"admin":   {},
		"api":     {},
		"assets":  {},
		"config":  {},
		"docs":    {},
		"events":  {},
		"files":   {},
		"health":  {},
		"login":   {},
		"logout":  {},
		"metrics": {},
		"public":  {},
		"static":  {},
		"uploads": {},
		"www":     {},
	}
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	_ = v.RegisterValidation("mimepattern", func(fl validator.FieldLevel) bool {
		return validMimePattern(fl.Field().String())
	})

	return v
}

func validMimePattern(pattern string) bool {
	return mimePatternRegexp.MatchString(strings.ToLower(pattern))
}

// validateEventID enforces the slug grammar: lowercase letters, digits and
// dashes, length >= 3, no leading or trailing dash, not a reserved word.
func validateEventID(id string) error {
	if len(id) < minEventIDLen || !slugRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", common.ErrInvalidEventID, id)
	}

	if _, reserved := reservedEventIDs[id]; reserved {
		return fmt.Errorf("%w: %q is reserved", common.ErrInvalidEventID, id)
	}

	return nil
}

// firstViolation maps the first validator error onto INVALID_INPUT{property}.
func firstViolation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.InvalidInput("payload")
	}

	property := verrs[0].Field()
	// Strip the index off dive errors: allowedMimeTypes[2] -> allowedMimeTypes.
	if idx := strings.IndexByte(property, '['); idx >= 0 {
		property = property[:idx]
	}

	return common.InvalidInput(property)
}
