package api

import (
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the custom binding rules. Call once before serving.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("langcode", validateLangCode); err != nil {
		return err
	}
	return v.RegisterValidation("sourcelang", validateSourceLang)
}

// langcode accepts any supported code, locale or language name.
func validateLangCode(fl validator.FieldLevel) bool {
	return services.IsSupportedLanguage(fl.Field().String())
}

// sourcelang also accepts "auto", which asks for detection.
func validateSourceLang(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return services.IsAutoLanguage(value) || services.IsSupportedLanguage(value)
}
