package handler

import (
	"net/http"

	"github.com/LENAX/pipeline-engine/pkg/api/dto"
	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/gin-gonic/gin"
)

// StatusCode 错误分类映射为HTTP状态码
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsAny(err, errors.ErrInvalidRequest, errors.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError 写入错误响应，4xx附带提示信息，5xx只返回概要
func respondError(c *gin.Context, err error) {
	code := StatusCode(err)
	msg := err.Error()
	if hints := errors.FlattenHints(err); hints != "" && code < http.StatusInternalServerError {
		msg += " (" + hints + ")"
	}
	_ = c.Error(err)
	c.JSON(code, dto.NewErrorResponse(code, msg))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, err.Error()))
}
