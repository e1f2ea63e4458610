package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tenantState 单个租户的迁移状态
type tenantState struct {
	mu        sync.Mutex      // 同一租户的迁移串行执行
	completed map[string]bool // 已完成的版本（内存缓存）
}

// Migrator 多租户迁移注册表
type Migrator struct {
	mu       sync.RWMutex
	versions map[string]MigrationFunc
	tenants  map[string]*tenantState
	log      *zap.Logger
}

// NewMigrator 创建迁移注册表
func NewMigrator(l *zap.Logger) *Migrator {
	if l == nil {
		l = zap.NewNop()
	}
	return &Migrator{
		versions: make(map[string]MigrationFunc),
		tenants:  make(map[string]*tenantState),
		log:      l.Named("tenant.migration"),
	}
}

// Register 注册迁移版本，版本号按字符串排序执行
func (m *Migrator) Register(version string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[version] = fn
}

// Versions 所有已注册版本（排序后）
func (m *Migrator) Versions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := make([]string, 0, len(m.versions))
	for v := range m.versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Completed 租户已完成的版本（排序后）
func (m *Migrator) Completed(tenantID string) []string {
	m.mu.RLock()
	ts, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, 0, len(ts.completed))
	for v := range ts.completed {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m *Migrator) state(tenantID string) *tenantState {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.tenants[tenantID]
	if !ok {
		ts = &tenantState{completed: make(map[string]bool)}
		m.tenants[tenantID] = ts
	}
	return ts
}

// Migrate 对租户库执行尚未应用的版本，每个版本一个事务。
// 签名与 database.PoolInitializer 一致，可直接挂到连接池注册表。
func (m *Migrator) Migrate(ctx context.Context, tenantID string, db *gorm.DB) error {
	versions := m.Versions()
	if len(versions) == 0 {
		return nil
	}

	ts := m.state(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	pending := versions[:0:0]
	for _, v := range versions {
		if !ts.completed[v] {
			pending = append(pending, v)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	db = db.WithContext(ctx)
	if err := db.Exec(createTableSQL).Error; err != nil {
		return fmt.Errorf("租户 %s 创建 sys_migration 表失败: %w", tenantID, err)
	}
	var applied []string
	if err := db.Raw(appliedSQL).Scan(&applied).Error; err != nil {
		return fmt.Errorf("租户 %s 读取已应用版本失败: %w", tenantID, err)
	}
	for _, v := range applied {
		ts.completed[v] = true
	}

	for _, version := range pending {
		if ts.completed[version] {
			continue
		}
		m.mu.RLock()
		fn := m.versions[version]
		m.mu.RUnlock()

		err := db.Transaction(func(tx *gorm.DB) error {
			if fn != nil {
				if err := fn(ctx, tx, version); err != nil {
					return err
				}
			}
			return tx.Exec(recordVersionSQL, version, time.Now()).Error
		})
		if err != nil {
			return fmt.Errorf("租户 %s 版本 %s 迁移失败: %w", tenantID, version, err)
		}
		ts.completed[version] = true
		m.log.Info("migration applied", zap.String("tenant", tenantID), zap.String("version", version))
	}
	return nil
}
