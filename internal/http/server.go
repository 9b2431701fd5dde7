package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/walkup/backend/internal/models"
	"github.com/example/walkup/backend/internal/service"
)

// Server wraps the gin engine and the services needed to handle API requests.
type Server struct {
	Engine   *gin.Engine
	queue    *service.QueueService
	settings *service.SettingsService
}

// NewServer constructs a new API server and registers routes.
func NewServer(queue *service.QueueService, settings *service.SettingsService) *Server {
	router := gin.Default()
	srv := &Server{Engine: router, queue: queue, settings: settings}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	api := s.Engine.Group("/api")
	api.GET("/queue", s.listQueue)
	api.DELETE("/queue", s.clearQueue)
	api.POST("/ticket", s.createTicket)
	api.PATCH("/ticket", s.editTicket)
	api.DELETE("/ticket", s.deleteTicket)
	api.GET("/settings", s.getSettings)
	api.POST("/settings", s.saveSettings)
}

func (s *Server) listQueue(c *gin.Context) {
	dateKey, tickets, err := s.queue.ListQueue(c.Request.Context(), c.Query("date"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dateKey": dateKey, "tickets": tickets})
}

func (s *Server) clearQueue(c *gin.Context) {
	dateKey, removed, err := s.queue.ClearWaiting(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dateKey": dateKey, "cleared": true, "removed": removed})
}

func (s *Server) createTicket(c *gin.Context) {
	var payload struct {
		DateKey string           `json:"dateKey"`
		Items   models.ItemLines `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items array is required"})
		return
	}
	ticket, err := s.queue.CreateTicket(c.Request.Context(), payload.DateKey, payload.Items)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (s *Server) editTicket(c *gin.Context) {
	var payload struct {
		ID      string           `json:"id" binding:"required"`
		DateKey string           `json:"dateKey" binding:"required"`
		Items   models.ItemLines `json:"items"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Items == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id, dateKey and items array are required"})
		return
	}
	id, err := uuid.Parse(payload.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ticket, err := s.queue.EditTicketItems(c.Request.Context(), payload.DateKey, id, payload.Items)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ticket.ID, "dateKey": ticket.DateKey, "items": ticket.Items})
}

func (s *Server) deleteTicket(c *gin.Context) {
	dateKey := c.Query("date")
	rawID := c.Query("id")
	if dateKey == "" || rawID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date and id are required"})
		return
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.queue.CancelTicket(c.Request.Context(), dateKey, id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "dateKey": dateKey, "deleted": true})
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) saveSettings(c *gin.Context) {
	var payload models.Settings
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings body"})
		return
	}
	saved, err := s.settings.Save(c.Request.Context(), &payload)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// writeError maps service errors onto HTTP responses. Stock rejections carry
// the netted figures so the client can render a precise message.
func (s *Server) writeError(c *gin.Context, err error) {
	var stock *service.StockExceededError
	switch {
	case errors.As(err, &stock):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "Stock exceeded",
			"message":         stock.Error(),
			"category":        stock.Category,
			"available":       stock.Available,
			"requested":       stock.Requested,
			"alreadyReserved": stock.AlreadyReserved,
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Can only edit waiting tickets"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
