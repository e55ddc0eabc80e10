// internal/services/errors.go
package services

import (
	"errors"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

// BusinessError is an expected outcome that is reported privately to the
// user and leaves state unchanged. Key is the i18n message key.
type BusinessError struct {
	Key  string
	Args []interface{}
}

func (e *BusinessError) Error() string {
	return e.Key
}

// Is matches business errors by key so that errors carrying arguments still
// match their sentinel.
func (e *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	return ok && t.Key == e.Key
}

// With returns a copy of e carrying message arguments.
func (e *BusinessError) With(args ...interface{}) *BusinessError {
	return &BusinessError{Key: e.Key, Args: args}
}

// Message renders the error in lang.
func (e *BusinessError) Message(lang string) string {
	return i18n.T(lang, e.Key, e.Args...)
}

func newBusinessError(key string) *BusinessError {
	return &BusinessError{Key: key}
}

var (
	ErrOutOfStock              = newBusinessError(i18n.KeyProductOutOfStock)
	ErrActiveTicketExists      = newBusinessError(i18n.KeyTicketActiveExists)
	ErrAlreadyVouched          = newBusinessError(i18n.KeyVouchAlready)
	ErrPaymentAlreadyConfirmed = newBusinessError(i18n.KeyPaymentAlreadyConfirmed)
	ErrPaymentAlreadySelected  = newBusinessError(i18n.KeyPaymentAlreadySelected)
	ErrPaymentMethodRequired   = newBusinessError(i18n.KeyPaymentMethodRequired)
	ErrInvalidPaymentMethod    = newBusinessError(i18n.KeyPaymentInvalidMethod)
	ErrNotAuthorized           = newBusinessError(i18n.KeyNotAuthorized)
	ErrTicketClosed            = newBusinessError(i18n.KeyTicketClosed)
	ErrTicketNotFound          = newBusinessError(i18n.KeyTicketNotFound)
	ErrProductNotFound         = newBusinessError(i18n.KeyProductNotFound)
	ErrKeyNotFound             = newBusinessError(i18n.KeyKeyNotFound)
	ErrTierNotOffered          = newBusinessError(i18n.KeyProductTierNotFound)
	ErrInvalidRating           = newBusinessError(i18n.KeyVouchInvalidRating)
	ErrInvalidTicketState      = newBusinessError(i18n.KeyTicketInvalidState)
	ErrVouchWindowClosed       = newBusinessError(i18n.KeyVouchWindowClosed)
	ErrNotDelivered            = newBusinessError(i18n.KeyTicketNotDelivered)
	ErrTicketOpenFailed        = newBusinessError(i18n.KeyTicketOpenFailed)
	ErrProductExists           = newBusinessError(i18n.KeyProductExists)
	ErrValidation              = newBusinessError(i18n.KeyErrorValidation)
)

// AsBusiness unwraps a business error from err.
func AsBusiness(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func validationFailed(err error) error {
	return ErrValidation.With(utils.DescribeValidation(err))
}
