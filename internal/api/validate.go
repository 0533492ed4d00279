package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"railopt/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateOptimizeRequest checks the request shape before it reaches the
// scheduling engine. Cross-entity problems such as movements referencing
// unknown trains are the engine's job; this layer only rejects requests that
// are malformed on their face.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if err := validate.Struct(req); err != nil {
		return firstFieldError(err)
	}
	return nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if err := validate.Struct(req); err != nil {
		return firstFieldError(err)
	}
	return nil
}

func validateOptimizerConfig(cfg *model.OptimizerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return firstFieldError(err)
	}
	return nil
}

// firstFieldError flattens a validator error list into a single readable
// message: clients get one problem at a time, not a wall of tags.
func firstFieldError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return err
}
