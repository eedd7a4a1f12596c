package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/curioswitch/go-firebasetoken/authtoken"
)

type config struct {
	ProjectID        string     `env:"FIREBASE_PROJECT_ID"`
	CredentialsFile  string     `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	ServiceAccountID string     `env:"FIREBASE_SERVICE_ACCOUNT_ID"`
	EmulatorHost     string     `env:"FIREBASE_AUTH_EMULATOR_HOST"`
	TenantID         string     `env:"FIREBASE_TENANT_ID"`
	LogLevel         slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

// loadDotEnv loads variables from .env in the working directory, if present.
// Variables already set in the environment take precedence.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// parseConfig reads config from environ, or the process environment if
// environ is nil.
func parseConfig(environ map[string]string) (config, error) {
	var conf config
	if err := env.ParseWithOptions(&conf, env.Options{Environment: environ}); err != nil {
		return config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return conf, nil
}

func (c config) clientConfig(logger *slog.Logger) (authtoken.Config, error) {
	conf := authtoken.Config{
		ProjectID:        c.ProjectID,
		ServiceAccountID: c.ServiceAccountID,
		EmulatorHost:     c.EmulatorHost,
		TenantID:         c.TenantID,
		Logger:           logger,
	}
	if c.CredentialsFile != "" && c.EmulatorHost == "" {
		creds, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return authtoken.Config{}, fmt.Errorf("reading credentials: %w", err)
		}
		conf.Credentials = creds
	}
	return conf, nil
}
