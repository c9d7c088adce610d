// Package shared wires the storage & services every binary runs on.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
)

// NewValidator instantiates the validator with every custom validation & its english error messages.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	holiday.InitValidators(validate, translator)
	return validate, translator
}
