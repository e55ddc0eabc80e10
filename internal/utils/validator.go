// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

var snowflakePattern = regexp.MustCompile(`^[0-9]{15,21}$`)

var licenseTiers = []string{"daily", "monthly", "lifetime"}

func init() {
	validate = validator.New()
	validate.RegisterValidation("snowflake", validateSnowflake)
	validate.RegisterValidation("price", validatePrice)
	validate.RegisterValidation("license_tier", validateLicenseTier)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar checks a single value against a tag such as "snowflake".
func ValidateVar(v interface{}, tag string) error {
	return validate.Var(v, tag)
}

// validateSnowflake accepts chat-platform numeric identifiers.
func validateSnowflake(fl validator.FieldLevel) bool {
	return snowflakePattern.MatchString(fl.Field().String())
}

// validatePrice accepts a non-negative decimal string with at most two
// fractional digits.
func validatePrice(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Exponent() >= -2
}

func validateLicenseTier(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	for _, t := range licenseTiers {
		if v == t {
			return true
		}
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

// DescribeValidation flattens validation errors into one line for chat
// replies.
func DescribeValidation(err error) string {
	errs := GetValidationErrors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gte", "lte":
		return e.Field() + " is out of range"
	case "snowflake":
		return e.Field() + " must be a platform ID"
	case "price":
		return e.Field() + " must be a non-negative amount with at most two decimals"
	case "license_tier":
		return e.Field() + " must be one of daily, monthly, lifetime"
	default:
		return e.Field() + " is invalid"
	}
}
