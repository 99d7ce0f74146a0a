package validation

import "github.com/go-playground/validator/v10"

// Validate is shared so struct metadata is cached once per process.
var Validate = validator.New(validator.WithRequiredStructEnabled())
