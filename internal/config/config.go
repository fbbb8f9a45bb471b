// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by MUDRA_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
)

// Classifier names accepted by MUDRA_CLASSIFIER.
const (
	ClassifierKNN      = "knn"
	ClassifierExternal = "external"
)

type Config struct {
	Addr       string
	DataDir    string
	Backend    string
	StoreURL   string
	K          int
	Camera     int
	Normalize  bool
	LiveFPS    int
	LogLevel   string
	Classifier string
	BackendDir string
	External   string
	Timeout    time.Duration

	// Motion is the percentage of changed pixels that wakes the live loop.
	// Zero classifies every tick.
	Motion float64
}

// Load reads a .env file from the working directory if there is one, then
// builds the config from the environment. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("MUDRA_DATA_DIR", defaultDataDir())

	k, err := getInt("MUDRA_K", 3)
	if err != nil {
		return nil, err
	}
	camera, err := getInt("MUDRA_CAMERA", 0)
	if err != nil {
		return nil, err
	}
	fps, err := getInt("MUDRA_LIVE_FPS", 5)
	if err != nil {
		return nil, err
	}
	normalize, err := getBool("MUDRA_NORMALIZE", false)
	if err != nil {
		return nil, err
	}
	timeout, err := getDuration("MUDRA_BACKEND_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	motion, err := getFloat("MUDRA_MOTION_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:       getEnv("MUDRA_ADDR", ":3000"),
		DataDir:    dataDir,
		Backend:    strings.ToLower(getEnv("MUDRA_BACKEND", BackendFile)),
		StoreURL:   getEnv("MUDRA_STORE_URL", "http://localhost:3000"),
		K:          k,
		Camera:     camera,
		Normalize:  normalize,
		LiveFPS:    fps,
		LogLevel:   getEnv("MUDRA_LOG_LEVEL", "info"),
		Classifier: strings.ToLower(getEnv("MUDRA_CLASSIFIER", ClassifierKNN)),
		BackendDir: getEnv("MUDRA_BACKEND_DIR", filepath.Join(dataDir, "backends")),
		External:   getEnv("MUDRA_EXTERNAL", "centroid"),
		Timeout:    timeout,
		Motion:     motion,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that enumerated and numeric settings are in range.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendHTTP:
	default:
		return fmt.Errorf("MUDRA_BACKEND: unknown backend %q", c.Backend)
	}
	switch c.Classifier {
	case ClassifierKNN, ClassifierExternal:
	default:
		return fmt.Errorf("MUDRA_CLASSIFIER: unknown classifier %q", c.Classifier)
	}
	if c.K < 1 {
		return fmt.Errorf("MUDRA_K: must be at least 1, got %d", c.K)
	}
	if c.LiveFPS < 1 {
		return fmt.Errorf("MUDRA_LIVE_FPS: must be at least 1, got %d", c.LiveFPS)
	}
	if c.Motion < 0 || c.Motion > 100 {
		return fmt.Errorf("MUDRA_MOTION_THRESHOLD: must be a percentage, got %g", c.Motion)
	}
	return nil
}

// PosesFile is the flat-file backend path.
func (c *Config) PosesFile() string {
	return filepath.Join(c.DataDir, "handposes.json")
}

// DatabaseFile is the SQLite backend path.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "mudra.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
