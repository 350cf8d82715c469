package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	loadOnce sync.Once
	loadErr  error
)

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New fills a T from the environment using envconfig tags. The first call
// loads the env file named by RELAY_ENV_FILE, or ./.env when present.
// Variables already set in the process environment win.
func New[T any](prefix string) (*T, error) {
	if err := loadDefaultEnv(); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", prefix, err)
	}
	return &conf, nil
}

// LoadEnv loads an explicit env file. Used by binaries that take an -env flag.
func LoadEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadDefaultEnv() error {
	loadOnce.Do(func() {
		path := strings.TrimSpace(os.Getenv("RELAY_ENV_FILE"))
		if path != "" {
			loadErr = LoadEnv(path)
			return
		}
		loadErr = loadIfExists(".env")
	})
	return loadErr
}

func loadIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return LoadEnv(path)
}
