package http

import (
	"errors"
	"net/http"

	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound), errors.Is(err, service.ErrRoomNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPersistenceFailure):
		logrus.WithError(err).Error("Storage failure while serving request")
		ErrorResponse(c, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
