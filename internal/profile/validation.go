package profile

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrValidation is wrapped by every ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError lists the input fields that failed validation
type ValidationError struct {
	Fields []string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid profile input: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() []error {
	if e.err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.err}
}

func newValidationError(err error, fields ...string) *ValidationError {
	ve := &ValidationError{Fields: fields, err: err}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			ve.Fields = append(ve.Fields, fe.Namespace())
		}
	}
	return ve
}

var cefrLevels = map[string]bool{"a1": true, "a2": true, "b1": true, "b2": true, "c1": true, "c2": true}

// IsCEFRLevel reports whether level is a CEFR code, case-insensitively
func IsCEFRLevel(level string) bool {
	return cefrLevels[strings.ToLower(level)]
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	_ = v.RegisterValidation("cefr", func(fl validator.FieldLevel) bool {
		return IsCEFRLevel(fl.Field().String())
	})
	return v
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// slugify lowercases name, folds diacritics and joins the remaining ASCII words with dashes
func slugify(name string) string {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 32 {
		slug = strings.TrimSuffix(slug[:32], "-")
	}
	if slug == "" {
		slug = "profile"
	}
	return slug
}

// newProfileKey derives a unique key from a display name
func newProfileKey(displayName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slugify(displayName) + "-" + suffix
}
