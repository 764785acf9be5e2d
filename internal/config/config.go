package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Live     LiveConfig
	Calendar CalendarConfig
	Profile  ProfileConfig
	Device   DeviceConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	live, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Live:     live,
		Calendar: loadCalendarConfig(),
		Profile:  ProfileConfig{Path: strings.TrimSpace(os.Getenv("PROFILE_PATH"))},
		Device:   DeviceConfig{CameraSnapshotPath: strings.TrimSpace(os.Getenv("CAMERA_SNAPSHOT_PATH"))},
		Log:      loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 为空时允许任意来源跨域。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

const (
	DefaultLiveURL      = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultLiveModel    = "models/gemini-2.0-flash-exp"
	DefaultVoice        = "Puck"
	DefaultHistoryLimit = 10
)

// LiveConfig 描述实时语音会话配置。
type LiveConfig struct {
	APIKey            string
	URL               string
	Model             string
	Voice             string
	VideoEnabled      bool
	TranscriptEnabled bool
	HistoryLimit      int
	DialTimeout       time.Duration
	PingInterval      time.Duration
	MaxDialRetries    int
}

// Enabled 表示是否提供了必需的密钥。
func (c LiveConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadLiveConfig() (LiveConfig, error) {
	video, err := parseBoolEnv("LIVE_VIDEO_ENABLED", false)
	if err != nil {
		return LiveConfig{}, err
	}

	transcript, err := parseBoolEnv("LIVE_TRANSCRIPT_ENABLED", true)
	if err != nil {
		return LiveConfig{}, err
	}

	historyLimit := DefaultHistoryLimit
	if override, err := parseOptionalIntEnv("LIVE_HISTORY_LIMIT"); err != nil {
		return LiveConfig{}, err
	} else if override != nil {
		if *override < 0 {
			historyLimit = 0
		} else {
			historyLimit = *override
		}
	}

	dialTimeout, err := parseDurationEnv("LIVE_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return LiveConfig{}, err
	}

	pingInterval, err := parseDurationEnv("LIVE_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return LiveConfig{}, err
	}

	retries := 3
	if override, err := parseOptionalIntEnv("LIVE_DIAL_RETRIES"); err != nil {
		return LiveConfig{}, err
	} else if override != nil && *override >= 0 {
		retries = *override
	}

	return LiveConfig{
		APIKey:            strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		URL:               getEnvOrDefault("GEMINI_LIVE_URL", DefaultLiveURL),
		Model:             getEnvOrDefault("GEMINI_MODEL", DefaultLiveModel),
		Voice:             getEnvOrDefault("GEMINI_VOICE", DefaultVoice),
		VideoEnabled:      video,
		TranscriptEnabled: transcript,
		HistoryLimit:      historyLimit,
		DialTimeout:       dialTimeout,
		PingInterval:      pingInterval,
		MaxDialRetries:    retries,
	}, nil
}

// CalendarConfig 描述日历工具所需的凭证。
type CalendarConfig struct {
	BaseURL      string
	AccessToken  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// HasRefreshCredentials 表示是否可以通过 refresh token 自动换取访问令牌。
func (c CalendarConfig) HasRefreshCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

func loadCalendarConfig() CalendarConfig {
	return CalendarConfig{
		BaseURL:      getEnvOrDefault("CALENDAR_BASE_URL", "https://www.googleapis.com/calendar/v3"),
		AccessToken:  strings.TrimSpace(os.Getenv("GOOGLE_ACCESS_TOKEN")),
		ClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		RefreshToken: strings.TrimSpace(os.Getenv("GOOGLE_REFRESH_TOKEN")),
	}
}

// ProfileConfig 用户资料存储位置，为空时使用内存存储。
type ProfileConfig struct {
	Path string
}

// DeviceConfig 本地采集设备配置。
type DeviceConfig struct {
	CameraSnapshotPath string
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// splitList 解析逗号分隔的列表，忽略空项。
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 Go duration 字符串，也接受纯数字（按秒处理）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
