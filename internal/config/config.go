package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketQR      string
	BucketAvatars string
	UseSSL        bool
	Region        string
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	SignatureSecret  string
	MaxSessions      int
	ResetCodeTTL     time.Duration
	TOTPIssuer       string
	QRLoginTwoFactor bool
}

type QRConfig struct {
	SystemID   string
	AdminTag   string
	StudentTag string
	ImageSize  int
}

type ScannerConfig struct {
	PreferredLabels []string
	PollInterval    time.Duration
	InitTimeout     time.Duration
	MaxAttempts     int
	BackoffStep     time.Duration
	DiagnosticsSize int
}

type BorrowingConfig struct {
	MaxActive        int
	ReturnHour       int
	OverdueAfterDays int
	FinePerDay       int
	Timezone         string
}

type AIConfig struct {
	BaseURL  string
	ChatPath string
	Model    string
	Timeout  time.Duration
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type RateLimitConfig struct {
	LoginPerMinute int
	LoginBurst     int
}

type KioskConfig struct {
	APIBase     string
	DeviceID    string
	CameraRoot  string
	AccessToken string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	QR               QRConfig
	Scanner          ScannerConfig
	Borrowing        BorrowingConfig
	AI               AIConfig
	Remote           RemoteConfig
	Worker           WorkerConfig
	RateLimit        RateLimitConfig
	Kiosk            KioskConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("LIBRARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketqr", "library-qr")
	v.SetDefault("storage.bucketavatars", "library-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.signaturesecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)
	v.SetDefault("security.resetcodettl", "15m")
	v.SetDefault("security.totpissuer", "Library")
	v.SetDefault("security.qrlogintwofactor", false)

	v.SetDefault("qr.systemid", "LIBRARY")
	v.SetDefault("qr.admintag", "ORG-TAG-ADMIN")
	v.SetDefault("qr.studenttag", "ORG-TAG-STUDENT")
	v.SetDefault("qr.imagesize", 512)

	v.SetDefault("scanner.preferredlabels", []string{"chicony", "04f2:b729"})
	v.SetDefault("scanner.pollinterval", "500ms")
	v.SetDefault("scanner.inittimeout", "10s")
	v.SetDefault("scanner.maxattempts", 3)
	v.SetDefault("scanner.backoffstep", "500ms")
	v.SetDefault("scanner.diagnosticssize", 10)

	v.SetDefault("borrowing.maxactive", 3)
	v.SetDefault("borrowing.returnhour", 16)
	v.SetDefault("borrowing.overdueafterdays", 7)
	v.SetDefault("borrowing.fineperday", 10)
	v.SetDefault("borrowing.timezone", "Asia/Manila")

	v.SetDefault("ai.baseurl", "http://localhost:11434")
	v.SetDefault("ai.chatpath", "/api/chat")
	v.SetDefault("ai.model", "llama3:8b-instruct-q4_K_M")
	v.SetDefault("ai.timeout", "60s")

	v.SetDefault("remote.baseurl", "")
	v.SetDefault("remote.timeout", "5s")

	v.SetDefault("worker.stream", "library:tasks")
	v.SetDefault("worker.group", "library-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "10s")

	v.SetDefault("ratelimit.loginperminute", 20)
	v.SetDefault("ratelimit.loginburst", 5)

	v.SetDefault("kiosk.apibase", "http://127.0.0.1:8080/api")
	v.SetDefault("kiosk.deviceid", "kiosk-1")
	v.SetDefault("kiosk.cameraroot", "./cameras")
	v.SetDefault("kiosk.accesstoken", "")

	v.SetDefault("allowcorsorigins", []string{"http://localhost:3000"})
}

// Validate reports settings the API cannot start without.
func (c *AppConfig) Validate() error {
	var missing []string
	if c.Postgres.DSN == "" {
		missing = append(missing, "postgres.dsn")
	}
	if c.Security.JWTAccessSecret == "" {
		missing = append(missing, "security.jwtaccesssecret")
	}
	if c.Security.SignatureSecret == "" {
		missing = append(missing, "security.signaturesecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if _, err := time.LoadLocation(c.Borrowing.Timezone); err != nil {
		return fmt.Errorf("borrowing.timezone: %w", err)
	}
	return nil
}

// Location returns the library's local time zone, UTC when unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Borrowing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
