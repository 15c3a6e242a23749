package restapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"render-engine/pkg/errno"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Failed 失败响应，根据错误类型映射HTTP状态码
func Failed(c *gin.Context, err error) {
	e := resolveErrno(err)

	status := http.StatusInternalServerError
	switch {
	case e.Code >= 400 && e.Code < 500:
		status = e.Code
	case e == errno.ErrRenderJobNotFound || e == errno.ErrProjectNotFound:
		status = http.StatusNotFound
	case e == errno.ErrTooManyActiveJobs || e == errno.ErrCreateLockHeld || e == errno.ErrQueueFull:
		status = http.StatusTooManyRequests
	case e.Code >= 21000:
		status = http.StatusBadRequest
	}

	c.JSON(status, Response{
		Code:    e.Code,
		Message: err.Error(),
	})
}

func resolveErrno(err error) *errno.Errno {
	var e *errno.Errno
	if errors.As(err, &e) {
		return e
	}
	var biz *errno.BizError
	if errors.As(err, &biz) {
		return biz.Errno
	}
	return errno.ErrInternalServer
}
