// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/catalog"
	"github.com/jacl-coder/PixelStream-Server/internal/store/postgres"
	"github.com/jacl-coder/PixelStream-Server/pkg/db"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	action := flag.String("action", "help", "操作类型: reset, init, seed, help")
	flag.Parse()

	// 显示帮助信息
	if *action == "help" {
		showHelp()
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("加载配置失败", "error", err)
		os.Exit(1)
	}
	if cfg.Database.Driver != "postgres" {
		logger.Error("数据库管理工具只支持 postgres 驱动", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 初始化数据库连接
	conn, err := db.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("初始化PostgreSQL失败", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// 执行操作
	switch *action {
	case "reset":
		logger.Warn("正在重置数据库，这将删除所有表和数据")
		err = db.DropAllTables(ctx, conn)
	case "init":
		err = db.InitAllTables(ctx, conn)
	case "seed":
		if err = db.InitAllTables(ctx, conn); err == nil {
			_, err = catalog.Seed(ctx, postgres.New(conn), logger)
		}
	default:
		err = fmt.Errorf("未知操作: %s", *action)
	}
	if err != nil {
		logger.Error("操作失败", "action", *action, "error", err)
		os.Exit(1)
	}
	logger.Info("操作完成", "action", *action)
}

// showHelp 显示帮助信息
func showHelp() {
	fmt.Println("PixelStream 数据库管理工具")
	fmt.Println("")
	fmt.Println("用法:")
	fmt.Println("  go run ./cmd/dbmanager -action=<操作> [-config=<配置文件>]")
	fmt.Println("")
	fmt.Println("操作:")
	fmt.Println("  reset  - 重置数据库（删除所有表和数据）")
	fmt.Println("  init   - 初始化数据库（创建表结构）")
	fmt.Println("  seed   - 创建表结构并写入初始游戏目录")
	fmt.Println("  help   - 显示此帮助信息")
	fmt.Println("")
	fmt.Println("示例:")
	fmt.Println("  go run ./cmd/dbmanager -action=reset && go run ./cmd/dbmanager -action=seed")
}
