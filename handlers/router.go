package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nester/logging"
)

func NewRouter(h *ScanHandler, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(logging.Gin(log), gin.Recovery())
	router.SetHTMLTemplate(pageTemplate())

	// Routes
	router.GET("/", h.ServeHTML)
	router.POST("/", h.ServeHTML)
	router.GET("/healthz", h.Health)
	router.POST("/api/data", h.ReceiveData)
	router.GET("/api/results", h.GetResults)
	router.GET("/api/results/:id", h.GetResultByID)

	return router
}
