package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   version,
	})
}
