package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alamor-network/vpn-fulfillment-service/internal/models"
	"github.com/alamor-network/vpn-fulfillment-service/internal/repository"
	"github.com/alamor-network/vpn-fulfillment-service/internal/service"
)

type Handler struct {
	provisionService *service.ProvisionService
	serverService    *service.ServerService
}

func NewHandler(provisionService *service.ProvisionService, serverService *service.ServerService) *Handler {
	return &Handler{
		provisionService: provisionService,
		serverService:    serverService,
	}
}

// ==================== Internal API Handlers ====================

// Provision handles order fulfillment requests from the bot front-end
func (h *Handler) Provision(c *gin.Context) {
	var req models.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.provisionService.Provision(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ProvisionTrial activates the free test account for a user
func (h *Handler) ProvisionTrial(c *gin.Context) {
	var req models.TrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.provisionService.ProvisionTrial(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrTrialAlreadyUsed) {
			c.JSON(http.StatusConflict, gin.H{"error": "free trial already claimed"})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPurchase gets a purchase by ID
func (h *Handler) GetPurchase(c *gin.Context) {
	purchaseID := c.Param("id")

	resp, err := h.provisionService.GetPurchase(c.Request.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPurchaseLogs gets the fulfillment audit trail for a purchase
func (h *Handler) GetPurchaseLogs(c *gin.Context) {
	purchaseID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.provisionService.GetPurchaseLogs(c.Request.Context(), purchaseID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// GetUserPurchases gets all purchases of a user (called by the bot front-end)
func (h *Handler) GetUserPurchases(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	resp, err := h.provisionService.ListUserPurchases(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": resp})
}

// DeactivatePurchase removes the purchase's client from the panel
func (h *Handler) DeactivatePurchase(c *gin.Context) {
	purchaseID := c.Param("id")

	if err := h.provisionService.Deactivate(c.Request.Context(), purchaseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ResetPurchaseTraffic zeroes the purchase's traffic counters
func (h *Handler) ResetPurchaseTraffic(c *gin.Context) {
	purchaseID := c.Param("id")

	if err := h.provisionService.ResetTraffic(c.Request.Context(), purchaseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetPurchaseIPs returns the panel's recorded IP log for the purchase's client
func (h *Handler) GetPurchaseIPs(c *gin.Context) {
	purchaseID := c.Param("id")

	resp, err := h.provisionService.PurchaseIPs(c.Request.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ClearPurchaseIPs clears the panel's IP log for the purchase's client
func (h *Handler) ClearPurchaseIPs(c *gin.Context) {
	purchaseID := c.Param("id")

	if err := h.provisionService.ClearPurchaseIPs(c.Request.Context(), purchaseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== Server Handlers ====================

// ListServers lists active servers and their last known status
func (h *Handler) ListServers(c *gin.Context) {
	resp, err := h.serverService.ListServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"servers": resp})
}

// CheckServer probes a server's panel and records the result
func (h *Handler) CheckServer(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}

	resp, err := h.serverService.CheckServer(c.Request.Context(), serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CheckAllServers probes every active server
func (h *Handler) CheckAllServers(c *gin.Context) {
	resp, err := h.serverService.CheckAllServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": resp})
}

// ListPanelInbounds lists inbounds present on the server's panel
func (h *Handler) ListPanelInbounds(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}

	resp, err := h.serverService.ListPanelInbounds(c.Request.Context(), serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inbounds": resp})
}

// GetOnlineClients lists client labels currently connected to the server
func (h *Handler) GetOnlineClients(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}

	resp, err := h.serverService.OnlineClients(c.Request.Context(), serverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResetServerTraffics zeroes the traffic counters of every inbound on a server
func (h *Handler) ResetServerTraffics(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}

	if err := h.serverService.ResetAllTraffics(c.Request.Context(), serverID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ResetInboundClientTraffics zeroes every client counter on one inbound
func (h *Handler) ResetInboundClientTraffics(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}
	inboundID, err := strconv.Atoi(c.Param("inbound_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inbound_id"})
		return
	}

	if err := h.serverService.ResetAllClientTraffics(c.Request.Context(), serverID, inboundID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteDepletedClients removes exhausted clients from one inbound
func (h *Handler) DeleteDepletedClients(c *gin.Context) {
	serverID, ok := h.serverID(c)
	if !ok {
		return
	}
	inboundID, err := strconv.Atoi(c.Param("inbound_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inbound_id"})
		return
	}

	if err := h.serverService.DeleteDepletedClients(c.Request.Context(), serverID, inboundID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== User API Handlers ====================

// GetMyPurchases gets the authenticated user's purchases
func (h *Handler) GetMyPurchases(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return
	}

	resp, err := h.provisionService.ListUserPurchases(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": resp})
}

func (h *Handler) serverID(c *gin.Context) (int64, bool) {
	serverID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return 0, false
	}
	return serverID, true
}
