package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"outreachly/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type IMAPConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

// GeneratorConfig selects and tunes the message generator. Mode is either
// "template" (local rendering) or "llm" (remote completion endpoint).
type GeneratorConfig struct {
	Mode    string        `json:"mode"`
	APIURL  string        `json:"api_url"`
	APIKey  string        `json:"-"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// EngineConfig holds the scheduler/executor knobs.
type EngineConfig struct {
	TickInterval       time.Duration `json:"tick_interval"`
	DueBatchSize       int           `json:"due_batch_size"`
	WorkerCount        int           `json:"worker_count"`
	ConditionRetry     time.Duration `json:"condition_retry"`
	MaxStepRetries     int           `json:"max_step_retries"`
	RetryBackoffBase   time.Duration `json:"retry_backoff_base"`
	RetryBackoffMax    time.Duration `json:"retry_backoff_max"`
	EngagementHalfLife time.Duration `json:"engagement_half_life"`
	// StallCancelAfter auto-cancels records whose gated step has made no
	// progress for this long. Zero disables auto-cancel and stalled
	// records stay active indefinitely.
	StallCancelAfter time.Duration `json:"stall_cancel_after"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis     RedisConfig     `json:"redis"`
	SMTP      SMTPConfig      `json:"smtp"`
	IMAP      IMAPConfig      `json:"imap"`
	Generator GeneratorConfig `json:"generator"`
	Engine    EngineConfig    `json:"engine"`

	SentryDSN         string        `json:"-"`
	TrackingBaseURL   string        `json:"tracking_base_url"`
	RateLimitTracking int           `json:"rate_limit_tracking"`
	ReplyPollInterval time.Duration `json:"reply_poll_interval"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "outreachly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "localhost"),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Outreachly"),
		},

		IMAP: IMAPConfig{
			Enabled:  getEnv("IMAP_HOST", "") != "",
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},

		Generator: GeneratorConfig{
			Mode:    getEnv("GENERATOR_MODE", "template"),
			APIURL:  getEnv("LLM_API_URL", ""),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout: time.Duration(getEnvAsInt("GENERATOR_TIMEOUT_SECONDS", 30)) * time.Second,
		},

		Engine: EngineConfig{
			TickInterval:       time.Duration(getEnvAsInt("TICK_INTERVAL_SECONDS", 60)) * time.Second,
			DueBatchSize:       getEnvAsInt("DUE_BATCH_SIZE", 100),
			WorkerCount:        getEnvAsInt("WORKER_COUNT", 4),
			ConditionRetry:     time.Duration(getEnvAsInt("CONDITION_RETRY_MINUTES", 60)) * time.Minute,
			MaxStepRetries:     getEnvAsInt("MAX_STEP_RETRIES", 5),
			RetryBackoffBase:   time.Duration(getEnvAsInt("RETRY_BACKOFF_BASE_MINUTES", 15)) * time.Minute,
			RetryBackoffMax:    time.Duration(getEnvAsInt("RETRY_BACKOFF_MAX_MINUTES", 24*60)) * time.Minute,
			EngagementHalfLife: time.Duration(getEnvAsInt("ENGAGEMENT_HALF_LIFE_DAYS", 7)) * 24 * time.Hour,
			StallCancelAfter:   time.Duration(getEnvAsInt("STALL_CANCEL_AFTER_DAYS", 0)) * 24 * time.Hour,
		},

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		TrackingBaseURL:   getEnv("TRACKING_BASE_URL", "http://localhost:5000"),
		RateLimitTracking: getEnvAsInt("RATE_LIMIT_TRACKING", 120),
		ReplyPollInterval: time.Duration(getEnvAsInt("REPLY_POLL_MINUTES", 5)) * time.Minute,
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.Generator.Mode == "llm" && AppConfig.Generator.APIURL == "" {
		return fmt.Errorf("LLM_API_URL is required when GENERATOR_MODE=llm")
	}
	if AppConfig.IMAP.Enabled && AppConfig.IMAP.Username == "" {
		return fmt.Errorf("IMAP_USERNAME is required when IMAP_HOST is set")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Connected to the database, running migrations...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Generator: %s, Redis: %t, IMAP reply polling: %t",
		AppConfig.Generator.Mode,
		AppConfig.Redis.Enabled,
		AppConfig.IMAP.Enabled)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SequenceDefinition{},
		&models.SequenceStep{},
		&models.ExecutionRecord{},
		&models.Prospect{},
		&models.ProspectTag{},
		&models.EngagementEvent{},
		&models.Delivery{},
	)
}
