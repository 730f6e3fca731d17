package airsync

import (
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/workflow"
	"github.com/gin-gonic/gin"
)

// TriggerPullHandler runs an Airtable staging pull synchronously. An empty
// or absent body pulls every table.
func TriggerPullHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		modules := DefaultPullModules()
		if c.Request.ContentLength > 0 {
			var body PullModules
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			if body.Purchases || body.Employees {
				modules = body
			}
		}

		client, err := newAirClient()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		run, err := runStagingSync(c.Request.Context(), client, modules, models.SyncTriggeredManual)
		if run == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runResponse(run, err))
	}
}

// PushHandler writes the reconciled tables back to Airtable. An empty or
// absent body pushes every table.
func PushHandler(engine *workflow.Engine, session *workflow.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		modules := DefaultPushModules()
		if c.Request.ContentLength > 0 {
			var body PushModules
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			if !isEmptyPushModules(body) {
				modules = body
			}
		}

		client, err := newAirClient()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		run, err := runPush(c.Request.Context(), client, engine, session, modules, models.SyncTriggeredManual)
		if run == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runResponse(run, err))
	}
}

// RunsHandler lists recent Airtable runs. ?direction=push narrows the list
// to push runs; anything else lists staging pulls.
func RunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := models.SyncProviderAirtable
		if strings.TrimSpace(c.Query("direction")) == "push" {
			provider = models.SyncProviderAirtablePush
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.GetSyncRuns(c.Request.Context(), provider, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func runResponse(run *models.SyncRun, err error) gin.H {
	resp := gin.H{
		"id":             run.ID,
		"status":         run.Status,
		"records_synced": run.RecordsSynced,
		"error_count":    run.ErrorCount,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return resp
}
