package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"gorm.io/gorm"
)

// SessionFactory 为一个租户打开请求级会话
type SessionFactory func(ctx context.Context) (*Session, error)

// Session 请求级会话：独占租户池中的一个连接，请求结束时 Close 归还。
// 不可跨请求共享。
type Session struct {
	tenantID string
	db       *gorm.DB
	conn     *sql.Conn
	openedAt time.Time

	once     sync.Once
	closed   chan struct{}
	closeErr error
}

func newSession(ctx context.Context, tenantID string, engine *gorm.DB, conn *sql.Conn) *Session {
	db := engine.Session(&gorm.Session{Context: ctx, NewDB: true})
	db.Statement.ConnPool = conn
	return &Session{
		tenantID: tenantID,
		db:       db,
		conn:     conn,
		openedAt: time.Now(),
		closed:   make(chan struct{}),
	}
}

// TenantID 会话所属租户（连接池键）
func (s *Session) TenantID() string {
	return s.tenantID
}

// DB 绑定在本会话连接上的 gorm 句柄
func (s *Session) DB() *gorm.DB {
	return s.db
}

// OpenedAt 会话打开时间
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// Closed 会话是否已关闭
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close 归还连接，可重复调用
func (s *Session) Close() error {
	s.once.Do(func() {
		s.closeErr = s.conn.Close()
		close(s.closed)
	})
	return s.closeErr
}
