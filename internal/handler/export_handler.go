package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/service"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

var exportContentTypes = map[string]string{
	service.ExportFormatCSV:  "text/csv; charset=utf-8",
	service.ExportFormatPDF:  "application/pdf",
	service.ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type gradeExporter interface {
	Export(ctx context.Context, session models.Session, assignmentID int64, format string) (*service.ExportResult, error)
	Open(token string) (*os.File, error)
}

// ExportHandler renders grade sheets and serves signed downloads.
type ExportHandler struct {
	exports gradeExporter
}

// NewExportHandler builds the handler.
func NewExportHandler(exports gradeExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Export the grade sheet of an assignment
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path int true "Assignment ID"
// @Param payload body dto.ExportGradesRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/exports [post]
func (h *ExportHandler) Export(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dto.ExportGradesRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	result, err := h.exports.Export(c.Request.Context(), session, id, req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ExportResponse{
		ID:        result.ID,
		Format:    result.Format,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
	})
}

// Download godoc
// @Summary Download an exported grade sheet via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.exports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	name := filepath.Base(file.Name())
	contentType, ok := exportContentTypes[strings.TrimPrefix(filepath.Ext(name), ".")]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
