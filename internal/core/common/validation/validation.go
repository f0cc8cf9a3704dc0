package validation

import (
	"fmt"
	"regexp"
	"slices"

	errors "github.com/frahmantamala/pocket-settlement/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

// ValidationBuilder collects field rules and reports every failure at once.
type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{FieldName: name, Value: value}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) rule(fn ValidatorFunc) *FieldValidator {
	fv.Validators = append(fv.Validators, fn)
	return fv
}

func (fv *FieldValidator) fail(code errors.ErrorCode, format string, args ...any) *errors.AppError {
	return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf(format, args...), code)
}

// Required treats the zero string, zero int64 and a nil or empty *string as missing.
func (fv *FieldValidator) Required() *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		missing := false
		switch v := value.(type) {
		case string:
			missing = v == ""
		case int64:
			missing = v == 0
		case *string:
			missing = v == nil || *v == ""
		}
		if missing {
			return fv.fail(errors.ErrCodeValidationFailed, "%s is required", fv.FieldName)
		}
		return nil
	})
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok && v < min {
			return fv.fail(code, "%s must be at least %d", fv.FieldName, min)
		}
		return nil
	})
}

func (fv *FieldValidator) MaxInt(max int64, code errors.ErrorCode) *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok && v > max {
			return fv.fail(code, "%s must not exceed %d", fv.FieldName, max)
		}
		return nil
	})
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && len(v) > max {
			return fv.fail(errors.ErrCodeValidationFailed, "%s must not exceed %d characters", fv.FieldName, max)
		}
		return nil
	})
}

// OneOf and Matches leave empty values to Required.
func (fv *FieldValidator) OneOf(allowed []string, code errors.ErrorCode) *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && v != "" && !slices.Contains(allowed, v) {
			return fv.fail(code, "%s must be one of %v", fv.FieldName, allowed)
		}
		return nil
	})
}

func (fv *FieldValidator) Matches(re *regexp.Regexp, message string) *FieldValidator {
	return fv.rule(func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && v != "" && !re.MatchString(v) {
			return fv.fail(errors.ErrCodeValidationFailed, "%s", message)
		}
		return nil
	})
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var collected []errors.ValidationError
	for _, field := range v.fields {
		for _, validate := range field.Validators {
			appErr := validate(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				collected = append(collected, details.Errors...)
				continue
			}
			collected = append(collected, errors.ValidationError{
				Field:   field.FieldName,
				Message: appErr.Message,
				Code:    string(appErr.Code),
			})
		}
	}

	if len(collected) == 0 {
		return nil
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: collected})
}

var (
	panPattern   = regexp.MustCompile(`^[0-9]{12,19}$`)
	phonePattern = regexp.MustCompile(`^7[0-9]{10}$`)
)

func ValidateAmountKop(amount int64) *errors.AppError {
	validator := NewValidator()
	validator.Field("amount_kop", amount).
		Required().
		MinInt(1, errors.ErrCodeInvalidAmount)
	return validator.Validate()
}

func ValidatePan(pan string) *errors.AppError {
	validator := NewValidator()
	validator.Field("pan", pan).
		Required().
		Matches(panPattern, "pan must be 12 to 19 digits")
	return validator.Validate()
}

// ValidatePhone accepts SBP phone numbers in the 7XXXXXXXXXX form.
func ValidatePhone(phone string) *errors.AppError {
	validator := NewValidator()
	validator.Field("phone", phone).
		Required().
		Matches(phonePattern, "phone must be 11 digits starting with 7")
	return validator.Validate()
}
