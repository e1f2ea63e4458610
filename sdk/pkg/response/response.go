// Package response 统一的接口响应格式 {code, msg, data, requestId}
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/logger"
)

type Response struct {
	Code      int         `json:"code"`
	Msg       string      `json:"msg"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// Error 失败响应；code 同时作为 HTTP 状态码（非法时使用500）
func Error(c *gin.Context, code int, err error, msg string) {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if err != nil {
		logger.GetRequestLogger(c).Warn("request failed",
			zap.String("path", c.Request.URL.Path), zap.Int("code", code), zap.Error(err))
	}
	status := code
	if status < http.StatusContinue || status > 599 {
		status = http.StatusInternalServerError
	}
	write(c, status, Response{Code: code, Msg: msg})
}

// OK 成功响应
func OK(c *gin.Context, data interface{}, msg string) {
	if msg == "" {
		msg = "OK"
	}
	write(c, http.StatusOK, Response{Code: http.StatusOK, Msg: msg, Data: data})
}

func write(c *gin.Context, status int, resp Response) {
	resp.RequestID = logger.RequestID(c.Request.Context())
	body, err := json.Marshal(resp)
	if err != nil {
		logger.GetRequestLogger(c).Error("encode response failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}
