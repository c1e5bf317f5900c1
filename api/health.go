package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var startedAt = time.Now()

// Health returns a liveness handler that also reports database reachability.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbOK := false
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				dbOK = sqlDB.Ping() == nil
			}
		}
		RespondSuccess(c, gin.H{
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"database":       dbOK,
		})
	}
}
