package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/emi-live/backend/internal/app"
	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/logging"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	"github.com/zhouzirui/emi-live/backend/internal/service/live"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	text := flag.String("text", "", "会话激活后发送的文本")
	tags := flag.String("tags", "", "激活后更新的兴趣标签，逗号分隔，用于验证上下文同步")
	language := flag.String("lang", "", "激活后更新的偏好语言")
	duration := flag.Duration("duration", 20*time.Second, "会话保持时长")
	timeout := flag.Duration("timeout", 15*time.Second, "等待会话激活的超时时间")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if !cfg.Live.Enabled() {
		log.Fatal("实时会话未启用，请先配置 GEMINI_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	var audioEvents atomic.Int64
	components, err := app.New(ctx, cfg, logger, app.Hooks{
		OnEvent: func(text *string, audioPresent bool) {
			if text != nil {
				fmt.Print(*text)
			}
			if audioPresent {
				audioEvents.Add(1)
			}
		},
		OnState: func(state live.State, errText string) {
			log.Printf("[live] state=%s error=%q", state, errText)
		},
	})
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer components.Close()

	client := components.Client
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("连接失败: %v", err)
	}

	if err := waitActive(ctx, client, *timeout); err != nil {
		log.Fatalf("会话未激活: %v (last error: %s)", err, client.Err())
	}
	log.Printf("[live] session active, model=%s voice=%s", cfg.Live.Model, cfg.Live.Voice)

	if *tags != "" || *language != "" {
		patch := profile.Patch{}
		if *tags != "" {
			list := strings.Split(*tags, ",")
			patch.Tags = &list
		}
		if *language != "" {
			patch.Language = language
		}
		if _, err := components.Profiles.Update(patch); err != nil {
			log.Fatalf("更新资料失败: %v", err)
		}
	}

	if *text != "" {
		if err := client.SendMessage(ctx, *text); err != nil {
			log.Fatalf("发送文本失败: %v", err)
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}
	client.Disconnect()

	fmt.Println()
	log.Printf("[live] session closed, state=%s audio_events=%d error=%q", client.State(), audioEvents.Load(), client.Err())
}

func waitActive(ctx context.Context, client *live.Client, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch client.State() {
		case live.StateActive:
			return nil
		case live.StateIdle:
			return fmt.Errorf("connection closed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out after %s", timeout)
		case <-ticker.C:
		}
	}
}
