package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health returns a JSON health check response.
// Checks DB and Redis connectivity and reports DLQ depth; never exposes
// credentials or internals. Sync agents also use this endpoint as their
// connectivity probe.
func Health(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		var dlqDepth int64
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		} else {
			for _, q := range []string{worker.QueueSessionReport, worker.QueueConflictAlert} {
				n, _ := worker.DLQLength(ctx, rdb, q)
				dlqDepth += n
			}
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":        status == http.StatusOK,
			"db":        dbStatus,
			"redis":     redisStatus,
			"dlq_depth": dlqDepth,
		})
	}
}

// RequeueDLQ handles POST /admin/dlq/:queue/requeue.
// Moves parked jobs back onto their source queue once the underlying fault
// is fixed. Admin only.
func RequeueDLQ(rdb *redis.Client) gin.HandlerFunc {
	valid := map[string]bool{
		worker.QueueSessionReport: true,
		worker.QueueConflictAlert: true,
	}

	return func(c *gin.Context) {
		queue := c.Param("queue")
		if !valid[queue] {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown queue"})
			return
		}

		n, err := worker.RequeueDLQ(c.Request.Context(), rdb, queue)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "requeue interrupted", "requeued": n})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": queue, "requeued": n})
	}
}
