// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

// respondError writes business errors as 4xx envelopes and anything else as
// a logged 500.
func respondError(c *gin.Context, err error) {
	be, ok := services.AsBusiness(err)
	if !ok {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Ops API request failed")
		utils.InternalErrorResponse(c, "")
		return
	}

	message := be.Message(utils.GetLangFromContext(c))
	switch {
	case errors.Is(be, services.ErrTicketNotFound),
		errors.Is(be, services.ErrProductNotFound),
		errors.Is(be, services.ErrKeyNotFound):
		utils.NotFoundResponse(c, message)
	case errors.Is(be, services.ErrNotAuthorized):
		utils.ForbiddenResponse(c, message)
	case errors.Is(be, services.ErrTicketClosed),
		errors.Is(be, services.ErrInvalidTicketState):
		utils.ConflictResponse(c, message)
	default:
		utils.BadRequestResponse(c, message, nil)
	}
}
