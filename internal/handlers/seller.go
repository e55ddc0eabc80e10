// internal/handlers/seller.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

type SellerHandler struct {
	reputationService *services.ReputationService
}

func NewSellerHandler(reputationService *services.ReputationService) *SellerHandler {
	return &SellerHandler{
		reputationService: reputationService,
	}
}

// GET /sellers/:id/reputation
func (h *SellerHandler) GetReputation(c *gin.Context) {
	sellerID := c.Param("id")
	if err := utils.ValidateVar(sellerID, "required,snowflake"); err != nil {
		utils.BadRequestResponse(c, "Invalid seller ID", nil)
		return
	}

	rep, err := h.reputationService.Summary(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"reputation": rep,
	})
}
