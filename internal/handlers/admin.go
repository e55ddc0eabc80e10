// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

type AdminHandler struct {
	ticketService *services.TicketService
	eventService  *services.EventService
}

func NewAdminHandler(ticketService *services.TicketService, eventService *services.EventService) *AdminHandler {
	return &AdminHandler{
		ticketService: ticketService,
		eventService:  eventService,
	}
}

type ForceCloseRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// GET /admin/tickets
func (h *AdminHandler) ListTickets(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.TicketSearchParams{
		PaginationParams: params,
		BuyerID:          c.Query("buyer_id"),
		SellerID:         c.Query("seller_id"),
	}

	if status := c.Query("status"); status != "" {
		ticketStatus := models.TicketStatus(status)
		if ticketStatus.Rank() < 0 {
			utils.BadRequestResponse(c, "Invalid ticket status", nil)
			return
		}
		searchParams.Status = ticketStatus
	}

	tickets, total, err := h.ticketService.ListTickets(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(tickets, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/tickets/:id
func (h *AdminHandler) GetTicket(c *gin.Context) {
	ticketID, ok := ticketIDParam(c)
	if !ok {
		return
	}

	ticket, err := h.ticketService.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	events, err := h.eventService.ListForTicket(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"ticket": ticket,
		"events": events,
	})
}

// POST /admin/tickets/:id/force-close
func (h *AdminHandler) ForceClose(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	ticketID, ok := ticketIDParam(c)
	if !ok {
		return
	}

	adminID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	username, _ := c.Get("username")
	name, _ := username.(string)

	var req ForceCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyErrorValidation, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	actor := services.Actor{UserID: adminID, Name: name, Admin: true}
	ticket, err := h.ticketService.ForceClose(c.Request.Context(), actor, ticketID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyTicketForceCloseAck),
		"ticket":  ticket,
	})
}

func ticketIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid ticket ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
