package handler

import (
	"errors"
	"net/http"

	"github.com/dkhromov/urlmapper/internal/middleware"
	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/dkhromov/urlmapper/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MappingHandler struct {
	service        service.MappingService
	clickProcessor service.ClickProcessor
	baseURL        string
	logger         *zap.Logger
}

func NewMappingHandler(service service.MappingService, clickProcessor service.ClickProcessor, baseURL string, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		service:        service,
		clickProcessor: clickProcessor,
		baseURL:        baseURL,
		logger:         logger,
	}
}

type CreateMappingRequest struct {
	OriginalURL string `json:"original_url" binding:"required"`
	CustomCode  string `json:"custom_code,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateMapping creates a short URL. Identity is optional: anonymous
// mappings are stored without an owner.
func (h *MappingHandler) CreateMapping(c *gin.Context) {
	var req CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.CreateMappingInput{
		OriginalURL: req.OriginalURL,
		CustomCode:  req.CustomCode,
	}
	if owner, ok := middleware.OwnerFromContext(c); ok {
		input.OwnerID = &owner
	}

	mapping, err := h.service.CreateMapping(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_url",
				Message: "Invalid URL format",
			})
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_code",
				Message: "Custom code must be 3-20 characters: letters, digits, '-' or '_'",
			})
		case errors.Is(err, service.ErrCodeTaken):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "code_taken",
				Message: "This custom code is already taken",
			})
		default:
			h.logger.Error("Failed to create mapping", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to create short URL",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(mapping))
}

// Redirect resolves a short code and answers immediately; the click is
// handed to the processor and never blocks or fails the response.
func (h *MappingHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	mapping, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			h.logger.Error("Failed to resolve short code", zap.String("code", code), zap.Error(err))
		}
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Short URL not found",
		})
		return
	}

	h.clickProcessor.Dispatch(&models.ClickEvent{
		MappingID: mapping.ID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	c.Redirect(http.StatusFound, mapping.OriginalURL)
}

// ListMine returns the caller's mappings, newest first.
func (h *MappingHandler) ListMine(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Identity required",
		})
		return
	}

	mappings, err := h.service.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to list mappings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list short URLs",
		})
		return
	}

	response := make([]models.MappingResponse, 0, len(mappings))
	for i := range mappings {
		response = append(response, h.toResponse(&mappings[i]))
	}

	c.JSON(http.StatusOK, response)
}

// DeleteMapping removes the caller's mapping. A code owned by someone else
// gets the same 404 as a missing one.
func (h *MappingHandler) DeleteMapping(c *gin.Context) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Identity required",
		})
		return
	}

	code := c.Param("code")
	if err := h.service.DeleteMapping(c.Request.Context(), code, owner); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Short URL not found",
			})
			return
		}
		h.logger.Error("Failed to delete mapping", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete short URL",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Short URL deleted successfully"})
}

// GetStats returns aggregated statistics for a short code. Public.
func (h *MappingHandler) GetStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.service.GetStatistics(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Short URL not found",
			})
			return
		}
		h.logger.Error("Failed to get stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *MappingHandler) toResponse(m *models.URLMapping) models.MappingResponse {
	return models.MappingResponse{
		ID:             m.ID,
		OriginalURL:    m.OriginalURL,
		ShortCode:      m.ShortCode,
		ShortURL:       h.baseURL + "/" + m.ShortCode,
		CreatedAt:      m.CreatedAt,
		ClickCount:     m.ClickCount,
		LastAccessedAt: m.LastAccessedAt,
	}
}
