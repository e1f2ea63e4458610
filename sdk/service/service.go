package service

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 业务服务基类；Orm 为当前请求绑定的租户数据库，不跨请求复用
type Service struct {
	Orm   *gorm.DB
	Msg   string
	MsgID string
	Log   *zap.Logger
	Error error
}

func (db *Service) AddError(err error) error {
	if db.Error == nil {
		db.Error = err
	} else if err != nil {
		db.Error = fmt.Errorf("%v; %w", db.Error, err)
	}
	return db.Error
}

// Logger 未设置时返回 Nop，方便单测直接构造 Service
func (db *Service) Logger() *zap.Logger {
	if db.Log == nil {
		return zap.NewNop()
	}
	return db.Log
}
