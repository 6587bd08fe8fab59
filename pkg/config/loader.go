package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrLoadingEnvFile = errors.New("config: cannot load env file")
	ErrParsingConfig  = errors.New("config: cannot parse environment")
	ErrNilPointer     = errors.New("config: nil target")
)

// DefaultEnvFile is read by LoadEnv when no file is named.
const DefaultEnvFile = ".env"

// LoadEnv copies the variables of the given .env files into the process
// environment. Variables already set win over file values, and earlier files
// win over later ones. With no arguments it reads DefaultEnvFile and tolerates
// its absence.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrLoadingEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Load parses the process environment into v according to its env tags.
// Nested structs without a tag are parsed recursively, so an application
// config can embed the Config types of the packages it wires.
//
//	type App struct {
//		HTTP httpserver.Config
//		PG   pg.Config
//	}
//
//	var cfg App
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
