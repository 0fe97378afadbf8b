package config

import (
	"reflect"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Validator is implemented by configuration structs with cross-field rules.
// Validate runs after the required tags pass. An *sserr.Error is returned
// unchanged; any other error is wrapped with [sserr.CodeValidation].
//
// Example:
//
//	func (c *Config) Validate() error {
//	    if c.JWKSURI == "" && c.UserPoolID == "" {
//	        return sserr.Validation("config: either jwks uri or user pool id is required")
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walkFields(rv, "", "", func(f fieldRef) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}
