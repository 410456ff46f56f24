package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of them
// exist there, the directory holding the nearest go.mod is tried instead.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root := findModuleRoot(); root != "" {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"pos_saas"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"legacy-migrator"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type AuthzOptions struct {
	ModelPath      string `env:"AUTHZ_MODEL_PATH" envDefault:"config/access/model.conf"`
	PolicyPath     string `env:"AUTHZ_POLICY_PATH" envDefault:"config/access/policy.csv"`
	FlagConfigPath string `env:"AUTHZ_FLAG_CONFIG" envDefault:"config/access/authz_flags.yaml"`
	Mode           string `env:"AUTHZ_MODE" envDefault:"enforce"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"20"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory | redis
}

// MigrationOptions tunes the legacy import engine.
type MigrationOptions struct {
	BatchSize         int           `env:"MIGRATION_BATCH_SIZE" envDefault:"400"`
	MaxInFlight       int           `env:"MIGRATION_MAX_IN_FLIGHT" envDefault:"3"`
	MaxRetries        int           `env:"MIGRATION_MAX_RETRIES" envDefault:"3"`
	InitialBackoff    time.Duration `env:"MIGRATION_INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff        time.Duration `env:"MIGRATION_MAX_BACKOFF" envDefault:"5s"`
	StoreTimeout      time.Duration `env:"MIGRATION_STORE_TIMEOUT" envDefault:"15s"`
	SampleSize        int           `env:"MIGRATION_SAMPLE_SIZE" envDefault:"50"`
	MinConfidence     float64       `env:"MIGRATION_MIN_CONFIDENCE" envDefault:"0.5"`
	MaxDistinctValues int           `env:"MIGRATION_MAX_DISTINCT_VALUES" envDefault:"1000"`
	CountryCode       string        `env:"MIGRATION_COUNTRY_CODE" envDefault:"55"`
	AreaCode          string        `env:"MIGRATION_AREA_CODE" envDefault:""`
	Currency          string        `env:"MIGRATION_CURRENCY" envDefault:"BRL"`
	DedupStrategy     string        `env:"MIGRATION_DEDUP_STRATEGY" envDefault:"phone"`
	SessionTTL        time.Duration `env:"MIGRATION_SESSION_TTL" envDefault:"2h"`
	LockTTL           time.Duration `env:"MIGRATION_LOCK_TTL" envDefault:"30m"`
	MaxUploadSize     int64         `env:"MIGRATION_MAX_UPLOAD_SIZE" envDefault:"33554432"`
}

// Validate checks the migration configuration for errors.
func (m *MigrationOptions) Validate() error {
	if m.BatchSize < 1 || m.BatchSize > 500 {
		return fmt.Errorf("MIGRATION_BATCH_SIZE must be within 1..500, got %d", m.BatchSize)
	}
	if m.MaxInFlight < 1 || m.MaxInFlight > 4 {
		return fmt.Errorf("MIGRATION_MAX_IN_FLIGHT must be within 1..4, got %d", m.MaxInFlight)
	}
	if m.MaxRetries < 0 || m.MaxRetries > 10 {
		return fmt.Errorf("MIGRATION_MAX_RETRIES must be within 0..10, got %d", m.MaxRetries)
	}
	if m.StoreTimeout <= 0 {
		return fmt.Errorf("MIGRATION_STORE_TIMEOUT must be positive, got %s", m.StoreTimeout)
	}
	if m.MinConfidence <= 0 || m.MinConfidence > 1 {
		return fmt.Errorf("MIGRATION_MIN_CONFIDENCE must be within (0,1], got %v", m.MinConfidence)
	}
	for _, r := range m.CountryCode + m.AreaCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("MIGRATION_COUNTRY_CODE/MIGRATION_AREA_CODE must be digits only")
		}
	}
	switch strings.ToLower(strings.TrimSpace(m.DedupStrategy)) {
	case "phone", "phone_email", "phone_name":
	default:
		return fmt.Errorf("invalid MIGRATION_DEDUP_STRATEGY=%q (expected phone|phone_email|phone_name)", m.DedupStrategy)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Authz         AuthzOptions
	Migration     MigrationOptions
	RateLimit     RateLimitOptions

	RedisURL         string        `env:"REDIS_URL" envDefault:""`
	ServerPort       int           `env:"PORT" envDefault:"3210"`
	GoAppEnvironment string        `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string        `env:"-"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string        `env:"LOG_PATH" envDefault:"./logs/migrator.log"`
	// Comma separated list of origins allowed to call the migration API.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`
	// The API will look for this header in the request, if it's not present, it will generate a random uuidv4
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Identity headers are set by the authenticating gateway in front of the API.
	UserIDHeader    string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
	UserRolesHeader string `env:"USER_ROLES_HEADER" envDefault:"X-User-Roles"`
	UserEmailHeader string `env:"USER_EMAIL_HEADER" envDefault:"X-User-Email"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// AllowedOrigins splits CORSAllowedOrigins into a clean list.
func (c *Configuration) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(c.CORSAllowedOrigins, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Migration.Validate(); err != nil {
		return fmt.Errorf("migration configuration error: %w", err)
	}
	c.Migration.DedupStrategy = strings.ToLower(strings.TrimSpace(c.Migration.DedupStrategy))

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
