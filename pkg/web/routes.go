// Package web provides API routes for the ops server.
package web

import (
	"net/http"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/ledger"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/recovery"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/database"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/gateway"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
	"github.com/gin-gonic/gin"
)

// APIDeps are the components the API routes read from and act on
type APIDeps struct {
	Ledger   *ledger.Ledger
	Recovery *recovery.Manager
}

// SetupAPIRoutes sets up the API routes
func SetupAPIRoutes(s *Server, deps APIDeps) {
	api := s.Group("/api")
	{
		api.GET("/status", statusHandler)
		api.GET("/health", healthHandler)
		api.GET("/recovery", recoveryHandler(deps))
		api.GET("/groups/:groupId/blacklist", blacklistHandler(deps))
		api.GET("/groups/:groupId/users/:userId/violations", violationsHandler(deps))
		api.POST("/groups/:groupId/users/:userId/reset", resetHandler(deps))
		api.GET("/feed", s.feed.ServeWS)
	}
}

// statusHandler returns the database and gateway status
func statusHandler(c *gin.Context) {
	db := database.Get()
	mc := gateway.Get()

	dbStatus, dbOnline := db.GetStatus()

	gatewayOnline := false
	if mc != nil {
		gatewayOnline = mc.IsConnected()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"database": gin.H{
			"status":   dbStatus,
			"isOnline": dbOnline,
		},
		"gateway": gin.H{
			"isOnline": gatewayOnline,
		},
	})
}

// healthHandler returns a simple health check response
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Techitoon Guard Go is running",
	})
}

// recoveryHandler lists every known recovery task
func recoveryHandler(deps APIDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tasks": deps.Recovery.Tasks(),
		})
	}
}

// blacklistHandler lists the blacklist entries of a group
func blacklistHandler(deps APIDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("groupId")
		entries := deps.Ledger.BlacklistedInGroup(groupID)
		if entries == nil {
			entries = []*models.BlacklistEntry{}
		}
		c.JSON(http.StatusOK, gin.H{
			"group":   groupID,
			"entries": entries,
		})
	}
}

// violationsHandler returns the per-category counters and remaining allowance
// for one user in one group
func violationsHandler(deps APIDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("groupId")
		userID := c.Param("userId")

		categories := gin.H{}
		for _, category := range models.AllCategories() {
			categories[string(category)] = gin.H{
				"count":     deps.Ledger.Count(groupID, userID, category),
				"threshold": deps.Ledger.Threshold(category),
				"remaining": deps.Ledger.RemainingAllowance(groupID, userID, category),
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"group":         groupID,
			"user":          userID,
			"isBlacklisted": deps.Ledger.IsBlacklisted(groupID, userID),
			"categories":    categories,
		})
	}
}

// resetHandler zeroes a user's counters and clears the blacklist entry.
// Without a category parameter every category is reset.
func resetHandler(deps APIDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("groupId")
		userID := c.Param("userId")

		targets := models.AllCategories()
		if raw := c.Query("category"); raw != "" {
			category, ok := models.ParseCategory(raw)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   "Bad Request",
					"message": "Categoría desconocida: " + raw,
				})
				return
			}
			targets = []models.Category{category}
		}

		for _, category := range targets {
			if err := deps.Ledger.Reset(groupID, userID, category); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal Server Error",
					"message": err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"group": groupID,
			"user":  userID,
			"reset": targets,
		})
	}
}
