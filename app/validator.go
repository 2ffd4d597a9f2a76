package roomchat

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

func registerMessage(trans ut.Translator, tag, text string) {
	validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(tag, strings.TrimPrefix(fe.Namespace(), "Config."), fe.Param())
		return t
	})
}

func init() {

	validate = validator.New()
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// config keys are lower case
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ","); name != "" {
			return name
		}
		return strings.ToLower(field.Name)
	})

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})

	registerMessage(enTrans, "required", "{0} is a required field")
	registerMessage(enTrans, "port", "{0} must be a valid port number")
	registerMessage(enTrans, "oneof", "{0} must be one of [{1}]")
	registerMessage(enTrans, "gt", "{0} must be greater than {1}")
	registerMessage(enTrans, "gte", "{0} must be at least {1}")
	registerMessage(enTrans, "min", "{0} must be at least {1}")
	registerMessage(enTrans, "max", "{0} must be at most {1}")
}
