package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Validator checks struct tags and reports failures per field.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator that names fields after their json tag, or the
// lower-camel field name when there is none.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return lowerFirst(f.Name)
		}
		return name
	})
	return &Validator{validate: v}
}

// FieldErrors maps a field path such as "items[0].quantity" to a message.
type FieldErrors map[string]any

// Struct validates s. It returns nil when s is valid, FieldErrors when a tag
// failed and the raw error for anything else.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(FieldErrors, len(ve))
	for _, fe := range ve {
		out[fieldPath(fe.Namespace())] = messageForTag(fe.Tag(), fe.Param())
	}
	return out
}

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return "invalid fields: " + strings.Join(keys, ", ")
}

// fieldPath drops the leading struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "min":
		return "must have at least " + param + " entries"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must not be less than " + param
	case "max":
		return "must be at most " + param + " characters"
	default:
		return "invalid value"
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
