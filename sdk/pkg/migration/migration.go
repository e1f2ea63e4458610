// Package migration 租户库的版本化迁移：连接池首次建立时执行尚未应用的版本
package migration

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Migration 迁移版本记录表
type Migration struct {
	Version   string    `gorm:"primaryKey;size:64"`
	ApplyTime time.Time `gorm:"autoCreateTime"`
}

func (Migration) TableName() string {
	return "sys_migration"
}

// 只用 postgres 与 mysql 都支持的语法
const (
	createTableSQL   = "CREATE TABLE IF NOT EXISTS sys_migration (version VARCHAR(64) PRIMARY KEY, apply_time TIMESTAMP NOT NULL)"
	appliedSQL       = "SELECT version FROM sys_migration"
	recordVersionSQL = "INSERT INTO sys_migration (version, apply_time) VALUES (?, ?)"
)

// MigrationFunc 迁移函数签名，tx 为该版本所在事务
type MigrationFunc func(ctx context.Context, tx *gorm.DB, version string) error
