// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jacl-coder/PixelStream-Server/config"
	"github.com/jacl-coder/PixelStream-Server/internal/auth"
	"github.com/jacl-coder/PixelStream-Server/internal/catalog"
	"github.com/jacl-coder/PixelStream-Server/internal/chat"
	"github.com/jacl-coder/PixelStream-Server/internal/gateway"
	"github.com/jacl-coder/PixelStream-Server/internal/identity"
	"github.com/jacl-coder/PixelStream-Server/internal/presence"
	"github.com/jacl-coder/PixelStream-Server/internal/realtime"
	"github.com/jacl-coder/PixelStream-Server/internal/session"
	"github.com/jacl-coder/PixelStream-Server/internal/store"
	"github.com/jacl-coder/PixelStream-Server/internal/store/memory"
	"github.com/jacl-coder/PixelStream-Server/internal/store/postgres"
	"github.com/jacl-coder/PixelStream-Server/pkg/db"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("服务器异常退出", "error", err)
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// newLogger 调试模式输出文本日志，否则输出JSON
func newLogger(cfg config.ServerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Debug {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// 初始化Redis连接
	rdb, err := db.OpenRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("初始化Redis失败: %w", err)
	}
	defer rdb.Close()

	popularity := catalog.NewPopularity(rdb)
	games := catalog.NewService(st, popularity, logger)
	if err := games.RebuildPopularity(ctx); err != nil {
		logger.Warn("重建游戏热度失败", "error", err)
	}

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, logger)
	cluster := realtime.NewCluster(hub, rdb, logger)
	registry := session.NewRegistry(st, session.LogProvisioner{Log: logger}, cluster, cfg.Session, logger,
		session.WithPopularity(popularity))
	chatLog := chat.NewLog(st, cluster, cfg.Realtime.ChatMaxLength, cfg.Session.StoreTimeout, logger)
	resolver := identity.NewResolver(st, cfg.Session.StoreTimeout, logger)
	tracker := presence.NewTracker(rdb, cfg.Presence, logger)
	authn := gateway.NewAuthenticator(auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer), resolver)

	ws := realtime.NewServer(hub, realtime.Deps{
		Sessions:     registry,
		Chat:         chatLog,
		Presence:     tracker,
		Users:        resolver,
		Authenticate: authn.Authenticate,
		Relay:        cluster,
	}, cfg.Realtime, cfg.Server.AllowedOrigins, logger)
	defer ws.Close()

	gw := gateway.NewGateway(cfg.Server, gateway.Deps{
		Sessions: registry,
		Chat:     chatLog,
		Presence: tracker,
		Catalog:  games,
		Auth:     authn,
		Realtime: ws,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)

	// 所有实例的上下线事件经 Redis 转发给本实例的连接
	events, err := tracker.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("订阅在线状态事件失败: %w", err)
	}

	g.Go(func() error { return gw.Run(ctx) })
	g.Go(func() error { return tracker.Run(ctx) })
	g.Go(func() error { return cluster.Run(ctx) })
	g.Go(func() error {
		for evt := range events {
			hub.BroadcastAll(evt)
		}
		return nil
	})

	logger.Info("所有服务已启动", "port", cfg.Server.HTTPPort, "database", cfg.Database.Driver)
	return g.Wait()
}

// openStore 按配置选择存储，postgres 模式下确保表结构存在
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		st := memory.New()
		if _, err := catalog.Seed(ctx, st, logger); err != nil {
			return nil, err
		}
		logger.Warn("使用内存存储，数据不会持久化")
		return st, nil
	}

	conn, err := db.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化PostgreSQL失败: %w", err)
	}
	if err := db.InitAllTables(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("初始化数据库表失败: %w", err)
	}
	return postgres.New(conn), nil
}
