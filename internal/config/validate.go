package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("alphanumupper", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		for _, r := range s {
			if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
				return false
			}
		}
		return true
	})
	return v
}

// Validate runs struct-tag validation over cfg after defaults have been
// applied, plus the cross-field checks the validator tags alone cannot
// express (duplicate server ids, at least one listener).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.Listeners) == 0 {
		return fmt.Errorf("config: at least one listener must be configured")
	}
	seen := make(map[string]bool, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		if seen[l.ServerID] {
			return fmt.Errorf("config: duplicate listener server_id %q", l.ServerID)
		}
		seen[l.ServerID] = true
	}
	return nil
}
