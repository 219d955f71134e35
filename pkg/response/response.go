package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

// Envelope is the body of every JSON response. A partially applied batch carries both data and error.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

func write(c *gin.Context, status int, body Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, body)
}

func firstMeta(meta []map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 || len(meta[0]) == 0 {
		return nil
	}
	return meta[0]
}

// JSON sends data with the given status.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	write(c, status, Envelope{Data: data, Meta: firstMeta(meta)})
}

// OK sends data with 200.
func OK(c *gin.Context, data interface{}, meta ...map[string]interface{}) {
	JSON(c, http.StatusOK, data, meta...)
}

// Created sends data with 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error maps err onto its typed status. Untyped errors become 500 INTERNAL_ERROR.
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData sends an error that still carries a payload.
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	appErr := appErrors.FromError(err)
	write(c, appErr.Status, Envelope{Data: data, Error: appErr})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
