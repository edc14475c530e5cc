package model

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations installs custom binding rules on gin's validator.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("pastdate", pastDate)
	}
}

// pastDate accepts YYYY-MM-DD dates that are not in the future. Format
// errors are left to the datetime rule.
func pastDate(fl validator.FieldLevel) bool {
	t, err := time.Parse("2006-01-02", fl.Field().String())
	if err != nil {
		return true
	}
	return !t.After(time.Now().UTC())
}
