package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
		Auth struct {
			Enabled bool   `yaml:"enabled"`
			Secret  string `yaml:"secret"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		StaticDir string `yaml:"static_dir"`
		// Origin 离线缓存回源地址，为空时使用本机静态目录
		Origin string `yaml:"origin"`
	} `yaml:"web"`

	AppVersion string `yaml:"app_version"`

	SelectedModule map[string]string    `yaml:"selected_module"`
	OCR            map[string]OCRConfig `yaml:"OCR"`

	Security  SecurityConfig  `yaml:"security"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Guidance  GuidanceConfig  `yaml:"guidance"`
	Capture   CaptureConfig   `yaml:"capture"`
	Detector  DetectorConfig  `yaml:"detector"`
	Offline   OfflineConfig   `yaml:"offline"`
}

// OCRConfig OCR提供者配置
type OCRConfig struct {
	Type      string                 `yaml:"type"`
	BaseURL   string                 `yaml:"url"`
	APIKey    string                 `yaml:"api_key"`
	ModelName string                 `yaml:"model_name"`
	Prompt    string                 `yaml:"prompt"`
	Timeout   string                 `yaml:"timeout"`
	Extra     map[string]interface{} `yaml:",inline"`
}

// SecurityConfig 上传图片安全配置
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // 最大文件大小（字节）
	MaxPixels      int64    `yaml:"max_pixels"`      // 最大像素数量
	MaxWidth       int      `yaml:"max_width"`       // 最大宽度
	MaxHeight      int      `yaml:"max_height"`      // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"` // 允许的图片格式
}

// AnalyticsConfig 分析日志配置
type AnalyticsConfig struct {
	Retention    int    `yaml:"retention"`
	WriteTimeout string `yaml:"write_timeout"`
}

// GuidanceConfig 取景引导配置，补偿系数与阈值均为经验值
type GuidanceConfig struct {
	TargetClass    string  `yaml:"target_class"`
	MinConfidence  float64 `yaml:"min_confidence"`
	Compensation   float64 `yaml:"compensation"`
	ReadyThreshold float64 `yaml:"ready_threshold"`
	MaxSide        int     `yaml:"max_side"`
	Contrast       float64 `yaml:"contrast"`
	Brightness     float64 `yaml:"brightness"`
	FPS            int     `yaml:"fps"`
}

// CaptureConfig 拍摄与上传配置
type CaptureConfig struct {
	Endpoint       string `yaml:"endpoint"`
	JPEGQuality    int    `yaml:"jpeg_quality"`
	LiveMaxSide    int    `yaml:"live_max_side"`
	GalleryMaxSide int    `yaml:"gallery_max_side"`
	SaveDir        string `yaml:"save_dir"`
	DeviceInfo     string `yaml:"device_info"`
	Token          string `yaml:"token"`
	Timeout        string `yaml:"timeout"`
}

// DetectorConfig 目标检测服务配置
type DetectorConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// OfflineConfig 离线缓存配置
type OfflineConfig struct {
	StaticCache  string   `yaml:"static_cache"`
	DynamicCache string   `yaml:"dynamic_cache"`
	StaticAssets []string `yaml:"static_assets"`
	OfflinePage  string   `yaml:"offline_page"`
	APIPrefix    []string `yaml:"api_prefix"`
	VersionPath  string   `yaml:"version_path"`
	PollInterval string   `yaml:"poll_interval"`
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	config, err := LoadConfigFrom(path)
	return config, path, err
}

// LoadConfigFrom 从指定路径加载配置，并用环境变量覆盖密钥
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.applyEnv()
	config.ApplyDefaults()
	return config, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OCR_API_KEY"); key != "" {
		for name, oc := range c.OCR {
			oc.APIKey = key
			c.OCR[name] = oc
		}
	}
	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		c.Server.Auth.Secret = secret
	}
	if version := os.Getenv("APP_VERSION"); version != "" {
		c.AppVersion = version
	}
}

// ApplyDefaults 为未配置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.LogDir == "" {
		c.Log.LogDir = "logs"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "INFO"
	}
	if c.Web.StaticDir == "" {
		c.Web.StaticDir = "public"
	}
	if c.AppVersion == "" {
		c.AppVersion = "1.0.0"
	}

	if c.Security.MaxFileSize == 0 {
		c.Security.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Security.MaxPixels == 0 {
		c.Security.MaxPixels = 40_000_000
	}
	if c.Security.MaxWidth == 0 {
		c.Security.MaxWidth = 8192
	}
	if c.Security.MaxHeight == 0 {
		c.Security.MaxHeight = 8192
	}
	if len(c.Security.AllowedFormats) == 0 {
		c.Security.AllowedFormats = []string{"jpeg", "png", "gif", "webp"}
	}

	if c.Analytics.Retention == 0 {
		c.Analytics.Retention = 1000
	}
	if c.Analytics.WriteTimeout == "" {
		c.Analytics.WriteTimeout = "3s"
	}

	g := &c.Guidance
	if g.TargetClass == "" {
		g.TargetClass = "cell phone"
	}
	if g.MinConfidence == 0 {
		g.MinConfidence = 0.7
	}
	if g.Compensation == 0 {
		g.Compensation = 2.5
	}
	if g.ReadyThreshold == 0 {
		g.ReadyThreshold = 0.4
	}
	if g.MaxSide == 0 {
		g.MaxSide = 1024
	}
	if g.Contrast == 0 {
		g.Contrast = 1.2
	}
	if g.Brightness == 0 {
		g.Brightness = 1.1
	}
	if g.FPS == 0 {
		g.FPS = 10
	}

	cp := &c.Capture
	if cp.Endpoint == "" {
		cp.Endpoint = fmt.Sprintf("http://127.0.0.1:%d/vision-api", c.Server.Port)
	}
	if cp.JPEGQuality == 0 {
		cp.JPEGQuality = 75
	}
	if cp.LiveMaxSide == 0 {
		cp.LiveMaxSide = 1024
	}
	if cp.GalleryMaxSide == 0 {
		cp.GalleryMaxSide = 1920
	}
	if cp.Timeout == "" {
		cp.Timeout = "60s"
	}

	if c.Detector.URL == "" {
		c.Detector.URL = "http://localhost:5000/predict"
	}
	if c.Detector.Timeout == "" {
		c.Detector.Timeout = "5s"
	}

	o := &c.Offline
	if o.StaticCache == "" {
		o.StaticCache = "receipt-static-v1"
	}
	if o.DynamicCache == "" {
		o.DynamicCache = "receipt-dynamic-v1"
	}
	if len(o.StaticAssets) == 0 {
		o.StaticAssets = []string{
			"/",
			"/index.html",
			"/styles.css",
			"/script.js",
			"/manifest.json",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
			"/offline.html",
			"https://fonts.googleapis.com/css2?family=Inter:wght@400;600&display=swap",
			"https://cdn.jsdelivr.net/npm/canvas-confetti@1.6.0/dist/confetti.browser.min.js",
		}
	}
	if o.OfflinePage == "" {
		o.OfflinePage = "/offline.html"
	}
	if len(o.APIPrefix) == 0 {
		o.APIPrefix = []string{"/api/", "/vision-api", "/logs", "/download-logs", "/metrics", "/sw"}
	}
	if o.VersionPath == "" {
		o.VersionPath = "/version.json"
	}
	if o.PollInterval == "" {
		o.PollInterval = "15m"
	}
}

// ParseDuration 解析配置中的时长字符串，失败时返回默认值
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
