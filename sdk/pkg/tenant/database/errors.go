package database

import "errors"

var (
	// ErrPoolConstructionFailed 连接池构建或校验查询失败，失败的池不会被登记
	ErrPoolConstructionFailed = errors.New("pool construction failed")

	// ErrTenantNotResolved 租户凭证无法解析（本地配置缺失、凭证服务失败或凭证不完整）
	ErrTenantNotResolved = errors.New("tenant not resolved")

	// ErrPoolNotFound 租户尚未建立连接池
	ErrPoolNotFound = errors.New("tenant pool not found")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")
)
