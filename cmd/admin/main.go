// admin 运维命令：执行迁移、创建超级管理员
//
//	admin migrate [-steps N | -force V | -version]
//	admin create-superadmin -email admin@example.com -name "Admin"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/config"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/database"
	applogger "github.com/mohamed66886/sehaty-sub000/pkg/logger"
)

const minPasswordLen = 8

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "create-superadmin":
		err = runCreateSuperAdmin(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: admin <migrate|create-superadmin> [参数]")
}

// connect 加载配置并连接数据库
func connect(configPath string) (*gorm.DB, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, logger, nil
}

// setup 连接数据库并迁移到最新版本
func setup(configPath string) (*gorm.DB, *zap.Logger, error) {
	db, logger, err := connect(configPath)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return db, logger, nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	steps := fs.Int("steps", 0, "前进 N 步，负数表示回滚")
	force := fs.Int("force", -1, "强制设置版本并清除 dirty 标记")
	showVersion := fs.Bool("version", false, "仅输出当前版本")
	_ = fs.Parse(args)

	db, logger, err := connect(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	mg, err := database.NewMigrator(sqlDB, logger)
	if err != nil {
		return err
	}

	switch {
	case *showVersion:
	case *force >= 0:
		err = mg.Force(*force)
	case *steps != 0:
		err = mg.Steps(*steps)
	default:
		err = mg.Up()
	}
	if err != nil {
		return err
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	fmt.Printf("当前版本: %d dirty=%t\n", version, dirty)
	return nil
}

func runCreateSuperAdmin(args []string) error {
	fs := flag.NewFlagSet("create-superadmin", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	email := fs.String("email", "", "管理员邮箱")
	name := fs.String("name", "Super Admin", "管理员姓名")
	_ = fs.Parse(args)

	*email = strings.ToLower(strings.TrimSpace(*email))
	if err := validator.New().Var(*email, "required,email"); err != nil {
		return fmt.Errorf("邮箱格式无效: %q", *email)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	db, logger, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewRepository(db)
	if _, err := repo.User.GetByEmail(ctx, *email); err == nil {
		return fmt.Errorf("邮箱已被使用: %s", *email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &model.User{
		Name:         strings.TrimSpace(*name),
		Email:        *email,
		PasswordHash: string(hash),
		Role:         model.RoleSuperAdmin,
		Language:     "ar",
		NotifyEmail:  true,
		IsActive:     true,
	}
	if err := repo.User.Create(ctx, user); err != nil {
		return fmt.Errorf("创建管理员失败: %w", err)
	}

	logger.Info("超级管理员已创建", zap.String("user_id", user.UserID), zap.String("email", user.Email))
	return nil
}

// readPassword 终端下交互输入两次；非终端时读取 SCHOOL_ADMIN_PASSWORD
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		pw := os.Getenv("SCHOOL_ADMIN_PASSWORD")
		if len(pw) < minPasswordLen {
			return "", fmt.Errorf("非交互模式需设置 SCHOOL_ADMIN_PASSWORD（至少 %d 位）", minPasswordLen)
		}
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "密码: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(first) < minPasswordLen {
		return "", fmt.Errorf("密码至少 %d 位", minPasswordLen)
	}
	fmt.Fprint(os.Stderr, "确认密码: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("两次输入的密码不一致")
	}
	return string(first), nil
}
