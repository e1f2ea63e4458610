package restapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/response"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/pkg/tenant/middleware"
	"github.com/ChenBigdata421/jxt-tenantdb/sdk/service"
)

// ErrNoTenantSession 当前请求没有绑定租户会话（路由未挂载 Binder 或路径被豁免）
var ErrNoTenantSession = errors.New("no tenant session bound to request")

type RestApi struct{}

// GetLogger 获取上下文提供的日志器，对GetRequestLogger做封装，可实现解耦。
func (e *RestApi) GetLogger(c *gin.Context) *zap.Logger {
	return logger.GetRequestLogger(c)
}

// GetOrm 当前请求绑定的租户数据库
func (e *RestApi) GetOrm(c *gin.Context) (*gorm.DB, error) {
	db := middleware.GetDB(c)
	if db == nil {
		return nil, ErrNoTenantSession
	}
	return db, nil
}

// GetTenantID 当前请求的租户标识
func (e *RestApi) GetTenantID(c *gin.Context) string {
	return middleware.GetTenantID(c)
}

// MakeService 用请求上下文填充 service：日志、租户数据库、请求ID
func (e *RestApi) MakeService(c *gin.Context, s *service.Service) error {
	s.Log = e.GetLogger(c)
	s.MsgID = logger.RequestID(c.Request.Context())
	db, err := e.GetOrm(c)
	if err != nil {
		return s.AddError(err)
	}
	s.Orm = db
	return nil
}

// Error 通常错误数据处理
func (e *RestApi) Error(c *gin.Context, code int, err error, msg string) {
	response.Error(c, code, err, msg)
}

// OK 通常成功数据处理
func (e *RestApi) OK(c *gin.Context, data interface{}, msg string) {
	response.OK(c, data, msg)
}

// BadRequest 参数错误
func (e *RestApi) BadRequest(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, err, "")
}
