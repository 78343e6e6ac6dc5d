package fee

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
)

var (
	txnRefTag   = "txnref"
	txnRefText  = "{0} may only contain letters, digits and the characters - _ / ."
	txnRefRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-/.]*$`)

	paymentMethodTag   = "paymentmethod"
	paymentMethodText  = "{0} may only contain lowercase letters, digits, spaces and underscores"
	paymentMethodRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_ ]*$`)
)

// InitValidators registers the validators used by the fee payloads.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(txnRefTag, txnRefValidation)
	core.RegisterCustomTranslation(validate, translator, txnRefTag, txnRefText)

	_ = validate.RegisterValidation(paymentMethodTag, paymentMethodValidation)
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)
}

func txnRefValidation(fl validator.FieldLevel) bool {
	return txnRefRegex.MatchString(fl.Field().String())
}

func paymentMethodValidation(fl validator.FieldLevel) bool {
	return paymentMethodRegex.MatchString(fl.Field().String())
}
