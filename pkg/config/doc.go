// Package config loads configuration structs from environment variables.
//
// LoadEnv reads optional .env files with github.com/joho/godotenv and Load
// parses the environment into a tagged struct with github.com/caarlos0/env/v11:
//
//	type Config struct {
//		Addr    string        `env:"HTTP_ADDR" envDefault:":8080"`
//		Timeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
//		DSN     string        `env:"PG_CONN_URL,required"`
//	}
//
//	if err := config.LoadEnv(); err != nil {
//		return err
//	}
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Parse failures, including missing required variables, wrap ErrParsingConfig.
package config
