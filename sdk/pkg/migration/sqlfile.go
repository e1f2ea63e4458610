package migration

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
)

// SQLFiles 返回按顺序执行 SQL 脚本的迁移函数；不存在的文件跳过
func SQLFiles(paths ...string) MigrationFunc {
	return func(ctx context.Context, tx *gorm.DB, version string) error {
		for _, p := range paths {
			if _, err := os.Stat(p); os.IsNotExist(err) {
				continue
			}
			statements, err := readStatements(p)
			if err != nil {
				return fmt.Errorf("读取 SQL 文件 %s 失败: %w", p, err)
			}
			for _, stmt := range statements {
				if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
					return fmt.Errorf("执行 SQL 文件 %s 失败: %w", p, err)
				}
			}
		}
		return nil
	}
}

// readStatements 按行读取，跳过注释和空行，以分号结尾的行结束一条语句
func readStatements(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		statements []string
		statement  strings.Builder
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		statement.WriteString(line)
		statement.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			sql := strings.TrimSpace(statement.String())
			if sql != "" && sql != ";" {
				statements = append(statements, sql)
			}
			statement.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return statements, nil
}

// DefaultSQLFiles 根据数据库驱动返回默认 SQL 文件列表
func DefaultSQLFiles(driver, configDir string) []string {
	switch driver {
	case "mysql":
		return []string{
			filepath.Join(configDir, "db-begin-mysql.sql"),
			filepath.Join(configDir, "db.sql"),
			filepath.Join(configDir, "db-end-mysql.sql"),
		}
	case "postgres":
		return []string{
			filepath.Join(configDir, "db.sql"),
			filepath.Join(configDir, "pg.sql"),
		}
	default:
		return []string{
			filepath.Join(configDir, "db.sql"),
		}
	}
}
