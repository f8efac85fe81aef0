package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpServer "SecAssist/api/http"
	"SecAssist/internal/config"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

func main() {
	confPath := flag.String("config", config.DefaultConfigPath, "path to the TOML config")
	flag.Parse()

	// 1. 加载配置
	conf, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := zlog.Init(zlog.Options{LogPath: conf.LogConfig.LogPath, Level: conf.LogConfig.Level}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化依赖并装配服务
	app, err := newApp(ctx, conf)
	if err != nil {
		zlog.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.Close()

	// 3. 后台任务：embedding 索引 worker 与保留策略定时任务
	go app.RunWorker(ctx)
	if err := app.scheduler.Start(); err != nil {
		zlog.Fatal("retention scheduler start failed", zap.Error(err))
	}

	// 4. 启动 HTTP 服务
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.NewRouter(conf, app.handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		var err error
		if cert := strings.TrimSpace(conf.MainConfig.TLSCert); cert != "" {
			err = srv.ListenAndServeTLS(cert, conf.MainConfig.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 5. 优雅关闭
	<-ctx.Done()
	zlog.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown failed", zap.Error(err))
	}
	app.scheduler.Stop(shutdownCtx)

	zlog.Info("服务器已关闭")
}
