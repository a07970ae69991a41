package config

import (
	"errors"
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

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ApplicationName string
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
	BucketAvatars string
	UseSSL        bool
	Region        string
	MaxAvatarSize int64
}

type SecurityConfig struct {
	JWTAccessSecret   string
	JWTRefreshSecret  string
	JWTAccessTTL      time.Duration
	JWTRefreshTTL     time.Duration
	BcryptCost        int
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	MinPasswordLength int
	ResendCooldown    time.Duration
}

type MailConfig struct {
	Provider        string
	From            string
	AppName         string
	FrontendBaseURL string
	Timeout         time.Duration
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	SendGridKey     string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type RateLimitConfig struct {
	Rate  float64
	Burst float64
}

type JobsConfig struct {
	TokenCleanupSpec  string
	ActivityPruneSpec string
	ActivityRetention time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Mongo            MongoConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Mail             MailConfig
	Kafka            KafkaConfig
	RateLimit        RateLimitConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TUTORHUB")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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

// Validate checks the settings the auth flows cannot run without.
func (c *AppConfig) Validate() error {
	if c.Security.JWTAccessSecret == "" || c.Security.JWTRefreshSecret == "" {
		return errors.New("config: jwt access and refresh secrets are required")
	}
	if c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		return errors.New("config: jwt access and refresh secrets must differ")
	}
	if c.Security.JWTAccessTTL <= 0 || c.Security.JWTRefreshTTL <= 0 {
		return errors.New("config: jwt ttls must be positive")
	}
	if c.Security.MinPasswordLength <= 0 {
		return errors.New("config: min password length must be positive")
	}
	if c.Mongo.URI == "" {
		return errors.New("config: mongo uri is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("allowcorsorigins", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "tutorhub")
	v.SetDefault("mongo.timeout", "5s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.connmaxidletime", "5m")
	v.SetDefault("postgres.applicationname", "tutorhub-api")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketavatars", "tutorhub-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxavatarsize", 2<<20)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "168h") // 7 days
	v.SetDefault("security.bcryptcost", 12)
	v.SetDefault("security.verificationttl", "24h")
	v.SetDefault("security.resetttl", "1h")
	v.SetDefault("security.minpasswordlength", 8)
	v.SetDefault("security.resendcooldown", "60s")

	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.appname", "TutorHub")
	v.SetDefault("mail.from", "no-reply@tutorhub.local")
	v.SetDefault("mail.frontendbaseurl", "http://localhost:3000")
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("mail.smtphost", "")
	v.SetDefault("mail.smtpport", 587)
	v.SetDefault("mail.smtpuser", "")
	v.SetDefault("mail.smtppass", "")
	v.SetDefault("mail.sendgridkey", "")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "tutorhub.user-events")

	v.SetDefault("ratelimit.rate", 0.2)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("jobs.tokencleanupspec", "0 0 * * * *")
	v.SetDefault("jobs.activityprunespec", "0 30 3 * * *")
	v.SetDefault("jobs.activityretention", "2160h") // 90 days
}

var envKeyReplacer = strings.NewReplacer(".", "_")
