package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express. An expired
// or unparsable token is only logged; the server has the final say.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Session.RequestTimeout < cfg.Session.WriteTimeout {
		return fmt.Errorf("session.request_timeout must not be shorter than session.write_timeout")
	}
	if cfg.Auth.Token != "" {
		info, err := rest.InspectToken(cfg.Auth.Token)
		switch {
		case err != nil:
			logging.Warn("auth token is not a readable JWT", logging.Err(err))
		case info.Expired(time.Minute):
			logging.Warn("auth token has expired", logging.Any("expires_at", info.ExpiresAt))
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
