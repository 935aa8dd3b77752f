package handler

import (
	"net/http"

	"github.com/dkhromov/urlmapper/internal/middleware"
	"github.com/dkhromov/urlmapper/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	mappingService service.MappingService,
	clickProcessor service.ClickProcessor,
	identity *middleware.Identity,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	mappingHandler := NewMappingHandler(mappingService, clickProcessor, baseURL, logger)

	router.GET("/health", HealthCheck)

	// Создание анонимно или от имени владельца, список и удаление — только
	// с идентификацией, статистика публичная
	router.POST("/urls", identity.Optional(), mappingHandler.CreateMapping)
	router.GET("/urls/mine", identity.Required(), mappingHandler.ListMine)
	router.DELETE("/urls/:code", identity.Required(), mappingHandler.DeleteMapping)
	router.GET("/urls/:code/stats", mappingHandler.GetStats)

	// Редирект (корневой путь)
	router.GET("/:code", mappingHandler.Redirect)

	return router
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "urlmapper",
	})
}
