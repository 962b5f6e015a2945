package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scout-hq/scout-api/internal/service"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
	"github.com/scout-hq/scout-api/pkg/response"
)

// AdminHandler exposes platform-admin operations.
type AdminHandler struct {
	exports *service.AuditExportService
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(exports *service.AuditExportService) *AdminHandler {
	return &AdminHandler{exports: exports}
}

type auditExportPayload struct {
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

// AuditExport godoc
// @Summary Export audit trail
// @Description Render recent audit entries to CSV and return a signed download token
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body handler.auditExportPayload false "Export window"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/audit-export [post]
func (h *AdminHandler) AuditExport(c *gin.Context) {
	var payload auditExportPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
			return
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if payload.Since != "" {
		parsed, err := time.Parse(time.RFC3339, payload.Since)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339"))
			return
		}
		since = parsed
	}

	result, err := h.exports.Export(c.Request.Context(), since, payload.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// AuditExportDownload godoc
// @Summary Download audit export
// @Description Stream a previously created export; the signed token is the access grant
// @Tags Admin
// @Produce text/csv
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/audit-export/download [get]
func (h *AdminHandler) AuditExportDownload(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, filename, err := h.exports.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
