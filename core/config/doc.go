// Package config loads typed configuration from environment variables.
//
// Struct fields are tagged for caarlos0/env; a .env file is read once on
// first use through godotenv:
//
//	type Config struct {
//		Name      string `env:"SERVICE_NAME" envDefault:"actkit"`
//		Transport string `env:"TRANSPORT"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Load caches one value per type, so every component asking for the same
// type sees the same configuration. Parse skips the cache.
package config
