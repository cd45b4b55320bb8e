package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"
)

const (
	notBlankTag = "notblank"
	webURLTag   = "weburl"
	wcaURLTag   = "wcaurl"
)

// FieldError is a single translated validation failure keyed by JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects every field failure of one validation pass.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field failure. Used by struct checks that need data the
// tags cannot express.
func (e *Error) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Merge copies the field failures of err into e and reports whether err was
// a validation error at all.
func (e *Error) Merge(err error) bool {
	var other *Error
	if !errors.As(err, &other) {
		return false
	}
	e.Fields = append(e.Fields, other.Fields...)
	return true
}

// OrNil returns nil when no failures were collected.
func (e *Error) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Validator wraps go-playground/validator with Spanish messages and JSON field names.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a validator with the custom tags used by request payloads.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	spanish := es.New()
	uni := ut.New(en.New(), spanish)
	translator, _ := uni.GetTranslator("es")
	_ = es_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})
	_ = validate.RegisterValidation(webURLTag, urlRule(CheckWebURL))
	_ = validate.RegisterValidation(wcaURLTag, urlRule(CheckWCACompetitionURL))

	noop := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, webURLTag, wcaURLTag} {
		_ = validate.RegisterTranslation(tag, translator, noop, translateCustom)
	}

	return &Validator{validate: validate, translator: translator}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " no puede estar vacío"
	case webURLTag, wcaURLTag:
		check := CheckWebURL
		if fe.Tag() == wcaURLTag {
			check = CheckWCACompetitionURL
		}
		if s, ok := fe.Value().(string); ok {
			if err := check(s); err != nil {
				return fe.Field() + " " + err.Error()
			}
		}
		return fe.Field() + " " + ErrURLMalformed.Error()
	default:
		return fe.Error()
	}
}

func urlRule(check func(string) error) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && check(s) == nil
	}
}

// RegisterStructValidation attaches a struct-level rule for the given types.
func (v *Validator) RegisterStructValidation(fn validator.StructLevelFunc, types ...any) {
	v.validate.RegisterStructValidation(fn, types...)
}

// Struct validates s and converts failures into an *Error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Add(fe.Field(), fe.Translate(v.translator))
	}
	return out
}
