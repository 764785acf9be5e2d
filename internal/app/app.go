// Package app 组装实时会话所需的全部组件，供各个入口复用。
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
	"github.com/zhouzirui/emi-live/backend/internal/config"
	"github.com/zhouzirui/emi-live/backend/internal/device"
	"github.com/zhouzirui/emi-live/backend/internal/metrics"
	"github.com/zhouzirui/emi-live/backend/internal/model/profile"
	"github.com/zhouzirui/emi-live/backend/internal/service/auth"
	"github.com/zhouzirui/emi-live/backend/internal/service/calendar"
	"github.com/zhouzirui/emi-live/backend/internal/service/chat"
	"github.com/zhouzirui/emi-live/backend/internal/service/live"
	"github.com/zhouzirui/emi-live/backend/internal/service/playback"
	"github.com/zhouzirui/emi-live/backend/internal/service/prompt"
	"github.com/zhouzirui/emi-live/backend/internal/service/tools"
)

const metricsNamespace = "emi"

// App 进程内共享的组件。
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Profiles profile.Store
	History  *chat.Service
	Tools    *tools.Bridge
	Devices  *device.System
	Client   *live.Client
}

// Hooks 会话回调，字段均可为 nil。
type Hooks struct {
	OnEvent live.Callback
	OnState live.StateCallback
}

// New 按配置组装组件。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, hooks Hooks) (*App, error) {
	collector := metrics.NewCollector(metricsNamespace, logger)

	var store profile.Store
	if cfg.Profile.Path != "" {
		fileStore, err := profile.OpenFileStore(cfg.Profile.Path)
		if err != nil {
			return nil, fmt.Errorf("open profile store: %w", err)
		}
		store = fileStore
		logger.Info("profile store loaded", zap.String("path", cfg.Profile.Path))
	} else {
		store = profile.NewMemoryStore(profile.Default())
	}

	history := chat.NewService(cfg.Live.HistoryLimit * 4)

	calendarClient := calendar.NewClient(cfg.Calendar.BaseURL, &http.Client{Timeout: 15 * time.Second}, logger)
	registry := tools.NewRegistry(tools.NewCalendarTool(calendarClient, auth.FromConfig(ctx, cfg.Calendar)))
	bridge := tools.NewBridge(registry, logger, collector, 0)

	devices, err := device.NewSystem()
	if err != nil {
		return nil, fmt.Errorf("init audio devices: %w", err)
	}

	opts := live.Options{
		Config: cfg.Live,
		Dialer: live.NewWebsocketDialer(live.DialOptions{
			URL:              cfg.Live.URL,
			APIKey:           cfg.Live.APIKey,
			HandshakeTimeout: cfg.Live.DialTimeout,
			PingInterval:     cfg.Live.PingInterval,
			MaxRetries:       cfg.Live.MaxDialRetries,
		}, logger),
		Profiles:   store,
		History:    history,
		Prompt:     prompt.NewBuilder(cfg.Live.HistoryLimit),
		Tools:      bridge,
		Microphone: devices.Microphone(),
		NewOutput: func() (playback.Output, error) {
			return devices.NewSpeaker(audio.OutputSampleRate)
		},
		OnEvent: hooks.OnEvent,
		OnState: hooks.OnState,
		Logger:  logger,
		Metrics: collector,
	}
	if cfg.Device.CameraSnapshotPath != "" {
		opts.Camera = device.NewSnapshotCamera(cfg.Device.CameraSnapshotPath)
	}

	if !cfg.Live.Enabled() {
		logger.Warn("GEMINI_API_KEY 未配置，实时会话不可用")
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  collector,
		Profiles: store,
		History:  history,
		Tools:    bridge,
		Devices:  devices,
		Client:   live.NewClient(opts),
	}, nil
}

// Close 断开会话，等待进行中的工具调用，释放设备。
func (a *App) Close() {
	a.Client.Close()
	a.Tools.Wait()
	if err := a.Devices.Close(); err != nil {
		a.Logger.Warn("close audio devices failed", zap.Error(err))
	}
}
