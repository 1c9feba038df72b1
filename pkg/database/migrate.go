package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator 封装 golang-migrate，迁移脚本随二进制内嵌
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// NewMigrator 基于已有连接创建迁移器
// 不提供 Close：migrate.Close 会连带关闭传入的 db
func NewMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("加载迁移文件失败: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("创建迁移驱动失败: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("初始化迁移实例失败: %w", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Up 应用全部未执行的迁移，已是最新时不报错
func (mg *Migrator) Up() error {
	return mg.apply("up", mg.m.Up())
}

// Steps n>0 前进 n 步，n<0 回滚 |n| 步
func (mg *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	return mg.apply(fmt.Sprintf("steps(%d)", n), mg.m.Steps(n))
}

// Force 强制标记版本并清除 dirty，仅在人工修复失败迁移后使用
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("强制设置迁移版本失败: %w", err)
	}
	mg.logger.Warn("迁移版本已强制设置", zap.Int("version", version))
	return nil
}

// Version 返回当前版本；尚未迁移时 version=0
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (mg *Migrator) apply(op string, err error) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行迁移 %s 失败: %w", op, err)
	}
	version, dirty, verr := mg.Version()
	if verr != nil {
		return verr
	}
	if dirty {
		mg.logger.Warn("数据库迁移处于 dirty 状态", zap.String("op", op), zap.Uint("version", version))
		return nil
	}
	mg.logger.Info("数据库迁移完成", zap.String("op", op), zap.Uint("version", version))
	return nil
}

// RunMigrations 启动时自动迁移到最新版本
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	mg, err := NewMigrator(db, logger)
	if err != nil {
		return err
	}
	return mg.Up()
}
