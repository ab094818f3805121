package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gradepilot/backend/internal/errdefs"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	OCR     OCRConfig
	LLM     LLMConfig
	Grading GradingConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type StorageConfig struct {
	Endpoint             string
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	QuestionPaperBucket  string
	GradingRubricBucket  string
	AnswerSheetBucket    string
	AdditionalFileBucket string
	TimeoutSec           int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type OCRConfig struct {
	Languages  []string
	TimeoutSec int
}

type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type GradingConfig struct {
	MaxTextLength     int
	ProcessTimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/gradepilot")

	viper.SetEnvPrefix("GRADEPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the startup contract: a missing credential is a fatal
// configuration error, never a per-request one.
func (c *Config) Validate() error {
	missing := []string{}

	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.Storage.AccessKeyID == "" {
		missing = append(missing, "storage.accessKeyId")
	}
	if c.Storage.SecretAccessKey == "" {
		missing = append(missing, "storage.secretAccessKey")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.apiKey")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings %s: %w",
			strings.Join(missing, ", "), errdefs.ErrConfiguration)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 26214400)

	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.questionPaperBucket", "question-papers")
	viper.SetDefault("storage.gradingRubricBucket", "grading-rubrics")
	viper.SetDefault("storage.answerSheetBucket", "answer-sheets")
	viper.SetDefault("storage.additionalFileBucket", "additional-files")
	viper.SetDefault("storage.timeoutSec", 15)

	viper.SetDefault("sqlite.path", "./data/gradepilot.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 86400)

	viper.SetDefault("ocr.languages", []string{"eng"})
	viper.SetDefault("ocr.timeoutSec", 30)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("grading.maxTextLength", 2000)
	viper.SetDefault("grading.processTimeoutSec", 180)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
