package workflow

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
)

type AssignRequest struct {
	AssetId    int    `json:"asset_id"`
	PurchaseId string `json:"purchase_id"`
	Quantity   int    `json:"quantity"`
	Strict     bool   `json:"strict"`
}

func NextPendingHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := s.NextPending(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if pending == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending assets"})
			return
		}
		c.JSON(http.StatusOK, pending)
	}
}

func CandidatesHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetId, err := strconv.Atoi(c.Param("asset_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
			return
		}
		detail, err := s.Candidates(c.Request.Context(), assetId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func AssignHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.AssetId <= 0 || strings.TrimSpace(req.PurchaseId) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "asset_id and purchase_id are required"})
			return
		}

		view, err := s.Assign(c.Request.Context(), req.AssetId, req.PurchaseId, req.Quantity, req.Strict)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			case errors.Is(err, matching.ErrUnknownPurchase):
				c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			case errors.Is(err, matching.ErrCapacityExceeded):
				c.JSON(http.StatusConflict, gin.H{"error": "purchase has no remaining quantity"})
			case errors.Is(err, matching.ErrAlreadyAssigned):
				c.JSON(http.StatusConflict, gin.H{"error": "asset is already assigned"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func UnassignHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetId, err := strconv.Atoi(c.Param("asset_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
			return
		}
		if err := s.Unassign(c.Request.Context(), assetId); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func SummaryHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := s.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func ReloadHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Reload(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func RunPipelineHandler(engine *Engine, s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		triggeredBy := "operator"
		if username, ok := utils.GetUsernameFromContext(c.Request.Context()); ok && username != "" {
			triggeredBy = username
		}
		report, err := engine.Run(c.Request.Context(), triggeredBy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.Invalidate()
		c.JSON(http.StatusOK, report)
	}
}

func LinkEmployeesHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := engine.LinkEmployees(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func ExportHandler(s *Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.ExportRows(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if c.Query("format") == "csv" {
			c.Header("Content-Type", "text/csv")
			c.Header("Content-Disposition", "attachment; filename=reconciliation.csv")
			if err := WriteExportCSV(c.Writer, rows); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=reconciliation.xlsx")
		if err := WriteExportXLSX(c.Writer, rows); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}
