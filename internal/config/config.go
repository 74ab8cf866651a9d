package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths    Paths    `toml:"paths" yaml:"paths"`
	Debug    Paths    `toml:"debug" yaml:"debug"`
	Workers  Workers  `toml:"workers" yaml:"workers"`
	CSJ      Corpus   `toml:"csj" yaml:"csj"`
	LaboroTV Corpus   `toml:"laborotv" yaml:"laborotv"`
	Manifest Manifest `toml:"manifest" yaml:"manifest"`
	Features Features `toml:"features" yaml:"features"`
	Logging  Logging  `toml:"logging" yaml:"logging"`
	Notify   Notify   `toml:"notify" yaml:"notify"`
	Catalog  Catalog  `toml:"catalog" yaml:"catalog"`
}

// Paths - input and output locations. Empty values are filled from flags.
type Paths struct {
	TransDir    string `toml:"trans_dir" yaml:"trans_dir"`
	CorpusDir   string `toml:"corpus_dir" yaml:"corpus_dir"`
	ManifestDir string `toml:"manifest_dir" yaml:"manifest_dir"`
	FbankDir    string `toml:"fbank_dir" yaml:"fbank_dir"`
	LangDir     string `toml:"lang_dir" yaml:"lang_dir"`
}

type Workers struct {
	Parse    int `toml:"parse" yaml:"parse"`
	Features int `toml:"features" yaml:"features"`
}

// Corpus - per-corpus partition list and supervision defaults.
type Corpus struct {
	Partitions    []string `toml:"partitions" yaml:"partitions"`
	Language      string   `toml:"language" yaml:"language"`
	NormalizeText bool     `toml:"normalize_text" yaml:"normalize_text"`
}

type Manifest struct {
	Compress bool `toml:"compress" yaml:"compress"`
}

type Features struct {
	Command            string    `toml:"command" yaml:"command"`
	Args               []string  `toml:"args" yaml:"args"`
	NumMelBins         int       `toml:"num_mel_bins" yaml:"num_mel_bins"`
	SpeedPerturb       []float64 `toml:"speed_perturb" yaml:"speed_perturb"`
	TrimToSupervisions bool      `toml:"trim_to_supervisions" yaml:"trim_to_supervisions"`
}

type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	Dir    string `toml:"dir" yaml:"dir"`
}

// Notify - remote notification sink. Secrets come from env, never defaults.
type Notify struct {
	TelegramToken  string `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	TelegramAPI    string `toml:"telegram_api" yaml:"telegram_api"`
	Level          string `toml:"level" yaml:"level"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Catalog - optional SQL catalog. Driver is "sqlite" or "mysql".
type Catalog struct {
	Driver    string `toml:"driver" yaml:"driver"`
	DSN       string `toml:"dsn" yaml:"dsn"`
	Host      string `toml:"host" yaml:"host"`
	Port      int    `toml:"port" yaml:"port"`
	User      string `toml:"user" yaml:"user"`
	Password  string `toml:"password" yaml:"password"`
	Name      string `toml:"name" yaml:"name"`
	HashAudio bool   `toml:"hash_audio" yaml:"hash_audio"`
}

var (
	CSJPartitions      = []string{"eval1", "eval2", "eval3", "core", "noncore"}
	LaboroTVPartitions = []string{"dev", "train"}
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Debug: Paths{
			ManifestDir: "data/manifests",
			FbankDir:    "data/fbank",
			LangDir:     "lang_char",
		},
		Workers: Workers{
			Parse:    4,
			Features: 4,
		},
		CSJ: Corpus{
			Partitions: append([]string(nil), CSJPartitions...),
			Language:   "Japanese",
		},
		LaboroTV: Corpus{
			Partitions: append([]string(nil), LaboroTVPartitions...),
			Language:   "Japanese",
		},
		Features: Features{
			NumMelBins:         80,
			SpeedPerturb:       []float64{0.9, 1.1},
			TrimToSupervisions: true,
		},
		Logging: Logging{
			Level: "info",
		},
		Notify: Notify{
			TelegramAPI:    "https://api.telegram.org",
			Level:          "warn",
			TimeoutSeconds: 10,
		},
		Catalog: Catalog{
			Driver: "sqlite",
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			Name:   "asrprep",
		},
	}
}

// Load builds the configuration: .env file, then config file (TOML or YAML
// by extension), then ASRPREP_* environment overrides. Missing files are not
// an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Paths.TransDir = getEnv("ASRPREP_TRANS_DIR", cfg.Paths.TransDir)
	cfg.Paths.CorpusDir = getEnv("ASRPREP_CORPUS_DIR", cfg.Paths.CorpusDir)
	cfg.Paths.ManifestDir = getEnv("ASRPREP_MANIFEST_DIR", cfg.Paths.ManifestDir)
	cfg.Paths.FbankDir = getEnv("ASRPREP_FBANK_DIR", cfg.Paths.FbankDir)
	cfg.Paths.LangDir = getEnv("ASRPREP_LANG_DIR", cfg.Paths.LangDir)

	cfg.Workers.Parse = getEnvInt("ASRPREP_PARSE_WORKERS", cfg.Workers.Parse)
	cfg.Workers.Features = getEnvInt("ASRPREP_FEATURE_WORKERS", cfg.Workers.Features)

	cfg.Logging.Level = getEnv("ASRPREP_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("ASRPREP_LOG_FORMAT", cfg.Logging.Format)

	cfg.Notify.TelegramToken = getEnv("ASRPREP_TELEGRAM_TOKEN", cfg.Notify.TelegramToken)
	cfg.Notify.TelegramChatID = getEnv("ASRPREP_TELEGRAM_CHAT_ID", cfg.Notify.TelegramChatID)

	cfg.Catalog.Driver = getEnv("ASRPREP_DB_DRIVER", cfg.Catalog.Driver)
	cfg.Catalog.DSN = getEnv("ASRPREP_DB_DSN", cfg.Catalog.DSN)
	cfg.Catalog.Host = getEnv("DB_HOST", cfg.Catalog.Host)
	cfg.Catalog.Port = getEnvInt("DB_PORT", cfg.Catalog.Port)
	cfg.Catalog.User = getEnv("DB_USER", cfg.Catalog.User)
	cfg.Catalog.Password = getEnv("DB_PASSWORD", cfg.Catalog.Password)
	cfg.Catalog.Name = getEnv("DB_NAME", cfg.Catalog.Name)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Workers.Parse <= 0 {
		return fmt.Errorf("workers.parse must be positive, got %d", c.Workers.Parse)
	}
	if c.Workers.Features <= 0 {
		return fmt.Errorf("workers.features must be positive, got %d", c.Workers.Features)
	}
	for _, f := range c.Features.SpeedPerturb {
		if f <= 0 {
			return fmt.Errorf("features.speed_perturb: factor must be positive, got %v", f)
		}
	}
	if c.Features.NumMelBins <= 0 {
		return fmt.Errorf("features.num_mel_bins must be positive, got %d", c.Features.NumMelBins)
	}
	switch c.Catalog.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("catalog.driver: unsupported value %q", c.Catalog.Driver)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return errors.New("notify: telegram token and chat id must be set together")
	}
	return nil
}

// UseDebugPaths overlays the [debug] section onto Paths.
func (c *Config) UseDebugPaths() {
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&c.Paths.TransDir, c.Debug.TransDir)
	overlay(&c.Paths.CorpusDir, c.Debug.CorpusDir)
	overlay(&c.Paths.ManifestDir, c.Debug.ManifestDir)
	overlay(&c.Paths.FbankDir, c.Debug.FbankDir)
	overlay(&c.Paths.LangDir, c.Debug.LangDir)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
