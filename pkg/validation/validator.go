package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	// MaxNameLength matches the longest name the definition language accepts
	MaxNameLength = 256

	// identifierPattern matches names usable as C identifiers
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// apxNamePattern matches names allowed inside quoted definition text
	apxNamePattern = regexp.MustCompile(`^[^"\r\n]+$`)
	// signatureStartPattern matches the first character of a data signature
	signatureStartPattern = regexp.MustCompile(`^[CSLUcslua{T]`)
)

func init() {
	validate = validator.New()
	mustRegister("cident", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	mustRegister("apxname", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) <= MaxNameLength && apxNamePattern.MatchString(s)
	})
	mustRegister("dsg", func(fl validator.FieldLevel) bool {
		return signatureStartPattern.MatchString(fl.Field().String())
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct checks v against its `validate` tags and returns Errors
// listing every failed field. Besides the built-in tags it understands
// cident (C identifier), apxname (a name that can be quoted in definition
// text) and dsg (a plausible data signature).
func ValidateStruct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return fieldErrors(err)
	}
	return nil
}

// ValidateIdentifier validates a name used in generated code
func ValidateIdentifier(name string) error {
	if name == "" {
		return errors.New("identifier cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("identifier '%s' exceeds maximum length of %d characters", name, MaxNameLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier '%s' is invalid (must start with letter or underscore, followed by alphanumeric or underscore)", name)
	}
	return nil
}

// fieldErrors converts validator failures into Errors, one per field
func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors, 0, len(verrs))
	for _, e := range verrs {
		config, field, _ := strings.Cut(e.Namespace(), ".")
		out = append(out, &FieldError{Config: config, Field: field, Reason: reason(e), Err: e})
	}
	return out
}

func reason(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must not exceed " + e.Param()
	case "cident":
		return fmt.Sprintf("%q is not a C identifier", e.Value())
	case "apxname":
		return fmt.Sprintf("%q cannot be quoted in a definition", e.Value())
	case "dsg":
		return fmt.Sprintf("%q is not a data signature", e.Value())
	}
	return "failed " + e.Tag()
}
