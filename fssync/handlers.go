package fssync

import (
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/gin-gonic/gin"
)

// TriggerSyncHandler runs a Freshservice pull synchronously and returns the
// finished run row. Missing credentials surface before a run row is created.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := newFsClient()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		run, err := runAssetSync(c.Request.Context(), client, models.SyncTriggeredManual)
		if run == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{
			"id":             run.ID,
			"status":         run.Status,
			"records_synced": run.RecordsSynced,
			"error_count":    run.ErrorCount,
		}
		if err != nil {
			resp["error"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.GetSyncRuns(c.Request.Context(), models.SyncProviderFreshservice, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}
