package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tempinbox/backend/internal/domain"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	Port            int           // 监听端口，默认 8080
	ReadTimeout     time.Duration // 读取超时
	WriteTimeout    time.Duration // 写入超时，SSE 长连接不受此限制
	ShutdownTimeout time.Duration // 优雅关闭等待时间
}

// MailboxConfig 定义收件箱生命周期配置
type MailboxConfig struct {
	Domain   string        // 地址域名后缀
	TTL      time.Duration // 收件箱生存时间，默认 10 分钟
	OTPTTL   time.Duration // 验证码有效期，默认 10 分钟
	SeedDemo bool          // 创建收件箱时写入演示邮件
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	Host            string        // 监听地址
	Port            int           // 监听端口，默认 2525
	Domain          string        // HELO/EHLO 响应域名
	PollInterval    time.Duration // 投递轮询间隔，默认 2 秒
	MaxMessageBytes int64         // 单封邮件最大字节数
	MaxRecipients   int           // 单次事务最大收件人数
	SpoolSize       int           // 待投递队列容量
	MaxConnections  int           // 最大并发连接数
	RatePerSecond   float64       // 单 IP 每秒新建连接数
	RateBurst       int           // 单 IP 突发连接数
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Addr 返回 host:port 形式的监听地址
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SweeperConfig 定义过期清理任务配置
type SweeperConfig struct {
	Interval time.Duration // 清理周期，默认 60 秒
	Workers  int           // 并发删除的工作协程数
}

// EventsConfig 定义实时推送配置
type EventsConfig struct {
	Backend    string        // local 或 redis
	BufferSize int           // 每个订阅的缓冲大小
	KeepAlive  time.Duration // SSE/WebSocket 心跳间隔
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空仅输出到标准输出
	MaxSize     int    // 单个日志文件大小上限 (MB)
	MaxBackups  int
	MaxAge      int // 天
	Compress    bool
}

// DatabaseConfig 定义数据库连接配置
type DatabaseConfig struct {
	Type            string // memory、postgres、mysql 或 sqlite
	Engine          string // gorm 或 sql
	Driver          string // sql 引擎使用的驱动名，为空时根据 Type 推断
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Enabled  bool   // 启用收件箱缓存
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
	PoolSize int
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	Sweeper  SweeperConfig
	Events   EventsConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPINBOX_，例如 TEMPINBOX_MAILBOX_DOMAIN、TEMPINBOX_SMTP_PORT
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("tempinbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var err error
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host: v.GetString("server.host"),
		Port: v.GetInt("server.port"),
	}
	if cfg.Server.ReadTimeout, err = duration(v, "server.read_timeout"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = duration(v, "server.write_timeout"); err != nil {
		return nil, err
	}
	if cfg.Server.ShutdownTimeout, err = duration(v, "server.shutdown_timeout"); err != nil {
		return nil, err
	}

	cfg.Mailbox = MailboxConfig{
		Domain:   strings.ToLower(strings.TrimSpace(v.GetString("mailbox.domain"))),
		SeedDemo: v.GetBool("mailbox.seed_demo"),
	}
	if cfg.Mailbox.TTL, err = duration(v, "mailbox.ttl"); err != nil {
		return nil, err
	}
	if cfg.Mailbox.OTPTTL, err = duration(v, "mailbox.otp_ttl"); err != nil {
		return nil, err
	}

	smtpDomain := v.GetString("smtp.domain")
	if smtpDomain == "" {
		smtpDomain = cfg.Mailbox.Domain
	}
	cfg.SMTP = SMTPConfig{
		Host:            v.GetString("smtp.host"),
		Port:            v.GetInt("smtp.port"),
		Domain:          smtpDomain,
		MaxMessageBytes: v.GetInt64("smtp.max_message_bytes"),
		MaxRecipients:   v.GetInt("smtp.max_recipients"),
		SpoolSize:       v.GetInt("smtp.spool_size"),
		MaxConnections:  v.GetInt("smtp.max_connections"),
		RatePerSecond:   v.GetFloat64("smtp.rate_per_second"),
		RateBurst:       v.GetInt("smtp.rate_burst"),
	}
	if cfg.SMTP.PollInterval, err = duration(v, "smtp.poll_interval"); err != nil {
		return nil, err
	}
	if cfg.SMTP.ReadTimeout, err = duration(v, "smtp.read_timeout"); err != nil {
		return nil, err
	}
	if cfg.SMTP.WriteTimeout, err = duration(v, "smtp.write_timeout"); err != nil {
		return nil, err
	}

	cfg.Sweeper = SweeperConfig{Workers: v.GetInt("sweeper.workers")}
	if cfg.Sweeper.Interval, err = duration(v, "sweeper.interval"); err != nil {
		return nil, err
	}

	cfg.Events = EventsConfig{
		Backend:    strings.ToLower(v.GetString("events.backend")),
		BufferSize: v.GetInt("events.buffer_size"),
	}
	if cfg.Events.KeepAlive, err = duration(v, "events.keepalive"); err != nil {
		return nil, err
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Log = LogConfig{
		Level:       v.GetString("log.level"),
		Development: v.GetBool("log.development"),
		File:        v.GetString("log.file"),
		MaxSize:     v.GetInt("log.max_size"),
		MaxBackups:  v.GetInt("log.max_backups"),
		MaxAge:      v.GetInt("log.max_age"),
		Compress:    v.GetBool("log.compress"),
	}

	cfg.Database = DatabaseConfig{
		Type:         strings.ToLower(v.GetString("database.type")),
		Engine:       strings.ToLower(v.GetString("database.engine")),
		Driver:       v.GetString("database.driver"),
		DSN:          v.GetString("database.dsn"),
		MaxOpenConns: v.GetInt("database.max_open_conns"),
		MaxIdleConns: v.GetInt("database.max_idle_conns"),
	}
	if cfg.Database.ConnMaxLifetime, err = duration(v, "database.conn_max_lifetime"); err != nil {
		return nil, err
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Address:  v.GetString("redis.address"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		PoolSize: v.GetInt("redis.pool_size"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("mailbox.domain", "tempinbox.local")
	v.SetDefault("mailbox.ttl", "10m")
	v.SetDefault("mailbox.otp_ttl", "10m")
	v.SetDefault("mailbox.seed_demo", false)
	v.SetDefault("smtp.host", "0.0.0.0")
	v.SetDefault("smtp.port", 2525)
	v.SetDefault("smtp.domain", "")
	v.SetDefault("smtp.poll_interval", "2s")
	v.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("smtp.max_recipients", 50)
	v.SetDefault("smtp.spool_size", 1024)
	v.SetDefault("smtp.max_connections", 200)
	v.SetDefault("smtp.rate_per_second", 5)
	v.SetDefault("smtp.rate_burst", 20)
	v.SetDefault("smtp.read_timeout", "60s")
	v.SetDefault("smtp.write_timeout", "60s")
	v.SetDefault("sweeper.interval", "60s")
	v.SetDefault("sweeper.workers", 4)
	v.SetDefault("events.backend", "local")
	v.SetDefault("events.buffer_size", 16)
	v.SetDefault("events.keepalive", "20s")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.type", "memory")
	v.SetDefault("database.engine", "gorm")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
}

// Validate 检查配置的合法性
func (c *Config) Validate() error {
	if err := domain.ValidateDomain(c.Mailbox.Domain); err != nil {
		return fmt.Errorf("invalid mailbox.domain %q: %w", c.Mailbox.Domain, err)
	}
	if c.Mailbox.TTL <= 0 {
		return fmt.Errorf("mailbox.ttl must be positive")
	}
	if c.Mailbox.OTPTTL <= 0 {
		return fmt.Errorf("mailbox.otp_ttl must be positive")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp.port %d", c.SMTP.Port)
	}
	if c.SMTP.PollInterval <= 0 {
		return fmt.Errorf("smtp.poll_interval must be positive")
	}
	if c.SMTP.MaxMessageBytes <= 0 {
		return fmt.Errorf("smtp.max_message_bytes must be positive")
	}
	if c.SMTP.SpoolSize <= 0 {
		return fmt.Errorf("smtp.spool_size must be positive")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	if c.Sweeper.Workers <= 0 {
		c.Sweeper.Workers = 1
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 1
	}
	switch c.Events.Backend {
	case "local":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("events.backend=redis requires redis.address")
		}
	default:
		return fmt.Errorf("unsupported events.backend %q (supported: local, redis)", c.Events.Backend)
	}
	switch c.Database.Type {
	case "", "memory":
		c.Database.Type = "memory"
	case "postgres", "mysql", "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for database.type=%s", c.Database.Type)
		}
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}
	switch c.Database.Engine {
	case "gorm":
		if c.Database.Type == "sqlite" {
			return fmt.Errorf("database.type=sqlite requires database.engine=sql")
		}
	case "sql":
	default:
		return fmt.Errorf("unsupported database.engine %q (supported: gorm, sql)", c.Database.Engine)
	}
	return nil
}

// SQLDriver 返回 sql 引擎使用的驱动名
func (c DatabaseConfig) SQLDriver() string {
	if c.Driver != "" {
		return c.Driver
	}
	return c.Type
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 如果文件不存在则静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
