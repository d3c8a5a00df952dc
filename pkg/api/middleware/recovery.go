package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/LENAX/pipeline-engine/pkg/api/dto"
	"github.com/LENAX/pipeline-engine/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Recovery panic恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Named("api").Errorw("请求处理panic",
					"path", c.Request.URL.Path,
					"panic", err,
					"stack", string(debug.Stack()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(
					http.StatusInternalServerError,
					"Internal Server Error",
				))
			}
		}()
		c.Next()
	}
}
