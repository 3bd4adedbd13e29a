package httpapi

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// echoValidator — validator/v10 с английскими сообщениями и JSON-именами полей.
type echoValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newValidator() *echoValidator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")

	v := validator.New()
	_ = en_translations.RegisterDefaultTranslations(v, translator)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	registerTranslation(v, translator, "required", "{0} is required")
	return &echoValidator{validate: v, translator: translator}
}

func (v *echoValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// fieldErrors — {поле: сообщение}; для вложенных структур ключ с путём (students[0].focusRating).
func (v *echoValidator) fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out[ns] = fe.Translate(v.translator)
	}
	return out
}

func registerTranslation(v *validator.Validate, t ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, t,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
