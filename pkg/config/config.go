package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	JWT             JWTConfig             `mapstructure:"jwt"`
	Log             LogConfig             `mapstructure:"log"`
	Minio           MinioConfig           `mapstructure:"minio"`
	Render          RenderConfig          `mapstructure:"render"`
	Worker          WorkerConfig          `mapstructure:"worker"`
	ServiceRegistry ServiceRegistryConfig `mapstructure:"service_registry"`
	Dependencies    DependenciesConfig    `mapstructure:"dependencies"`
	Profiling       ProfilingConfig       `mapstructure:"profiling"`
	Public          PublicConfig          `mapstructure:"public"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	BootstrapServers     []string          `mapstructure:"bootstrap_servers"`
	ClientID             string            `mapstructure:"client_id"`
	GroupID              string            `mapstructure:"group_id"`
	Enabled              bool              `mapstructure:"enabled"`
	Topics               KafkaTopicsConfig `mapstructure:"topics"`
	CommitOnDecodeError  bool              `mapstructure:"commit_on_decode_error"`
	CommitOnProcessError bool              `mapstructure:"commit_on_process_error"`
}

type KafkaTopicsConfig struct {
	RenderJobs string `mapstructure:"render_jobs"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	ExpireTime time.Duration `mapstructure:"expire_time"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MinioConfig MinIO配置
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKey       string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// RenderConfig 渲染编排配置
type RenderConfig struct {
	FFmpeg            FFmpegConfig  `mapstructure:"ffmpeg"`
	DefaultProfile    string        `mapstructure:"default_profile"`
	MaxActiveJobs     int           `mapstructure:"max_active_jobs"`
	SegmentDurationMs int64         `mapstructure:"segment_duration_ms"`
	SegmentOverlapMs  int64         `mapstructure:"segment_overlap_ms"`
	ForceCPU          bool          `mapstructure:"force_cpu"`
	CreateLockTTL     time.Duration `mapstructure:"create_lock_ttl"`
	TargetLUFS        float64       `mapstructure:"target_lufs"`
	SlowMoQuality     string        `mapstructure:"slow_mo_quality"`
}

// FFmpegConfig FFmpeg相关配置
type FFmpegConfig struct {
	BinaryPath        string        `mapstructure:"binary_path"`
	ProbeBinaryPath   string        `mapstructure:"probe_binary_path"`
	TempDir           string        `mapstructure:"temp_dir"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SegmentTimeout    time.Duration `mapstructure:"segment_timeout"`
	Threads           int           `mapstructure:"threads"`
	UseHardwareDecode bool          `mapstructure:"use_hardware_decode"`
}

// WorkerConfig Worker相关配置
type WorkerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	WorkerID            string        `mapstructure:"worker_id"`
	MaxConcurrentJobs   int           `mapstructure:"max_concurrent_jobs"`
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// ServiceRegistryConfig registration configuration.
type ServiceRegistryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoints       []string      `mapstructure:"endpoints"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceID       string        `mapstructure:"service_id"`
	RegisterHost    string        `mapstructure:"register_host"`
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DependenciesConfig enumerates downstream services used by render-engine.
type DependenciesConfig struct {
	TimelineService CollaboratorConfig `mapstructure:"timeline_service"`
	MediaService    CollaboratorConfig `mapstructure:"media_service"`
}

// CollaboratorConfig describes an HTTP collaborator endpoint.
type CollaboratorConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ProfilingConfig pyroscope配置
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
}

// PublicConfig 对外访问配置
type PublicConfig struct {
	StorageBase string `mapstructure:"storage_base"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("service_registry.enabled", true)
	viper.SetDefault("service_registry.service_name", "render-engine")
	viper.SetDefault("kafka.enabled", true)
	viper.SetDefault("kafka.client_id", "render-engine")
	viper.SetDefault("kafka.group_id", "render-engine-group")
	viper.SetDefault("kafka.bootstrap_servers", []string{"localhost:29092"})
	viper.SetDefault("kafka.topics.render_jobs", "render.jobs")
	viper.SetDefault("kafka.commit_on_decode_error", true)
	viper.SetDefault("kafka.commit_on_process_error", false)

	// 设置环境变量前缀
	viper.SetEnvPrefix("RENDER_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	// 解析配置
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.normalize()

	return &config, nil
}

// normalize 补全配置的默认值
func (c *Config) normalize() {
	// 兼容不同的密钥字段
	if c.Minio.AccessKeyID == "" {
		c.Minio.AccessKeyID = c.Minio.AccessKey
	}
	if c.Minio.SecretAccessKey == "" {
		c.Minio.SecretAccessKey = c.Minio.SecretKey
	}

	if c.Render.DefaultProfile == "" {
		c.Render.DefaultProfile = "youtube_1080p"
	}
	if c.Render.MaxActiveJobs <= 0 {
		c.Render.MaxActiveJobs = 4
	}
	if c.Render.SegmentDurationMs <= 0 {
		c.Render.SegmentDurationMs = 10000
	}
	if c.Render.SegmentOverlapMs < 0 {
		c.Render.SegmentOverlapMs = 0
	}
	if c.Render.CreateLockTTL <= 0 {
		c.Render.CreateLockTTL = 10 * time.Second
	}
	if c.Render.TargetLUFS == 0 {
		c.Render.TargetLUFS = -14
	}
	if c.Render.SlowMoQuality == "" {
		c.Render.SlowMoQuality = "high"
	}

	// FFmpeg默认值
	if c.Render.FFmpeg.TempDir == "" {
		c.Render.FFmpeg.TempDir = "/tmp/render-engine"
	}
	if c.Render.FFmpeg.BinaryPath == "" {
		c.Render.FFmpeg.BinaryPath = "ffmpeg"
	}
	if c.Render.FFmpeg.ProbeBinaryPath == "" {
		c.Render.FFmpeg.ProbeBinaryPath = "ffprobe"
	}
	if c.Render.FFmpeg.Threads < 0 {
		c.Render.FFmpeg.Threads = 0
	}
	if c.Render.FFmpeg.Timeout == 0 {
		c.Render.FFmpeg.Timeout = time.Hour
	}
	if c.Render.FFmpeg.SegmentTimeout == 0 {
		c.Render.FFmpeg.SegmentTimeout = 2 * time.Hour
	}

	// Worker相关默认值
	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 2
	}
	if c.Worker.QueueCapacity <= 0 {
		c.Worker.QueueCapacity = c.Worker.MaxConcurrentJobs * 10
	}
	if c.Worker.ShutdownGracePeriod == 0 {
		c.Worker.ShutdownGracePeriod = 10 * time.Second
	}

	if c.ServiceRegistry.TTL == 0 {
		c.ServiceRegistry.TTL = 30 * time.Second
	}
	if c.ServiceRegistry.RefreshInterval == 0 {
		c.ServiceRegistry.RefreshInterval = 10 * time.Second
	}
	if len(c.ServiceRegistry.Endpoints) == 0 {
		c.ServiceRegistry.Endpoints = []string{"localhost:2379"}
	}

	if c.Dependencies.TimelineService.ServiceName == "" {
		c.Dependencies.TimelineService.ServiceName = "timeline-service"
	}
	if c.Dependencies.TimelineService.Timeout <= 0 {
		c.Dependencies.TimelineService.Timeout = 10 * time.Second
	}
	if c.Dependencies.MediaService.ServiceName == "" {
		c.Dependencies.MediaService.ServiceName = "media-service"
	}
	if c.Dependencies.MediaService.Timeout <= 0 {
		c.Dependencies.MediaService.Timeout = 10 * time.Second
	}

	if len(c.Kafka.BootstrapServers) == 0 {
		c.Kafka.BootstrapServers = []string{"localhost:29092"}
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "render-engine"
	}
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// GetRedisAddr 获取Redis地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
