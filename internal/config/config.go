package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/validator"
)

// Client is one API key holder: a judgehost or a piece of jury tooling.
type Client struct {
	ID     string `mapstructure:"id"      json:"id"      validate:"required,uuid_rfc4122"`
	Note   string `mapstructure:"note"    json:"note"    validate:"required"`
	APIKey APIKey `mapstructure:"api_key" json:"api_key" validate:"required"`
}

type APIKeyPermissions struct {
	Judgehost bool `mapstructure:"judgehost" json:"judgehost"`
	Jury      bool `mapstructure:"jury"      json:"jury"`
}

type APIKey struct {
	Active      *bool             `mapstructure:"active"      json:"active"      validate:"required"`
	Token       string            `mapstructure:"token"       json:"token"       validate:"required"`
	Permissions APIKeyPermissions `mapstructure:"permissions" json:"permissions"`
}

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

// JudgehostConfig holds the liveness thresholds used to classify hosts by
// their last poll time.
type JudgehostConfig struct {
	WarningSeconds  int64 `mapstructure:"warning_seconds"`
	CriticalSeconds int64 `mapstructure:"critical_seconds"`
}

type JudgingConfig struct {
	// Only run enough testcases to determine the verdict; the rest can be
	// requested later via judge-remaining.
	LazyEval bool `mapstructure:"lazy_eval"`
	// Judgings must be verified by the jury before results go out.
	VerificationRequired bool `mapstructure:"verification_required"`
	// Auto-verify even when the expected result set has multiple entries.
	AutoVerifyMultiple bool `mapstructure:"auto_verify_multiple"`
}

// ScoreboardConfig points at the external scoreboard/balloon service the
// orchestrator notifies after validity flips. Empty URL disables delivery.
type ScoreboardConfig struct {
	URL        string        `mapstructure:"url"`
	BalloonURL string        `mapstructure:"balloon_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	RedisHost     string `mapstructure:"redis_host"`
	PollPerMinute int64  `mapstructure:"poll_per_minute"`
	FailOpen      bool   `mapstructure:"fail_open"`
}

// See judgeapi.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig   `mapstructure:"postgres"   validate:"required"`
	Logging              *LoggingConfig    `mapstructure:"logging"`
	Judgehost            *JudgehostConfig  `mapstructure:"judgehost"  validate:"required"`
	Judging              *JudgingConfig    `mapstructure:"judging"    validate:"required"`
	Scoreboard           *ScoreboardConfig `mapstructure:"scoreboard"`
	RateLimit            *RateLimitConfig  `mapstructure:"ratelimit"`
	ListenAddress        string            `mapstructure:"listen_address" validate:"required"`
	Clients              []Client          `mapstructure:"clients"        validate:"required"`
	GracefulShutdownSecs int64             `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel                string = "logging.app.level"
	EnvPrefix                  string = "judgeapi"
	UseOTLP                    string = "logging.use_otlp"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	JudgehostWarningSeconds    string = "judgehost.warning_seconds"
	JudgehostCriticalSeconds   string = "judgehost.critical_seconds"
	JudgingLazyEval            string = "judging.lazy_eval"
	JudgingVerificationReq     string = "judging.verification_required"
	JudgingAutoVerifyMultiple  string = "judging.auto_verify_multiple"
	ListenAddress              string = "listen_address"
	PollPerMinute              string = "ratelimit.poll_per_minute"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresConnectionTTL      string = "postgres.connection_ttl"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RedisHost                  string = "ratelimit.redis_host"
	ScoreboardTimeout          string = "scoreboard.timeout"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("judgeapi")

	v.AddConfigPath("/etc/judgeapi/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	err := v.BindEnv(PostgresPassword)
	if err != nil {
		return nil, err
	}

	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectionTTL, 10*time.Minute)
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(UseOTLP, false)

	v.SetDefault(JudgehostWarningSeconds, 30)
	v.SetDefault(JudgehostCriticalSeconds, 120)
	v.SetDefault(JudgingLazyEval, true)
	v.SetDefault(JudgingVerificationReq, false)
	v.SetDefault(JudgingAutoVerifyMultiple, false)

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(PollPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)

	v.SetDefault(ScoreboardTimeout, 10*time.Second)
	v.SetDefault(GracefulShutdownSecs, 30)

	err = v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
	)
}
