package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379" validate:"min=1000,max=65535"`
	// 0 sizes the pool from the CPU count.
	RedisPoolSize int `env:"REDIS_POOL_SIZE" envDefault:"0" validate:"min=0,max=512"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"atelier_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"atelier_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"atelier_db"`
	PostgresMaxConns int    `env:"POSTGRES_MAX_CONNS" envDefault:"25" validate:"min=1,max=200"`

	PlayerID       string `env:"PLAYER_ID"       envDefault:"" validate:"required"`
	PlayerEmail    string `env:"PLAYER_EMAIL"    envDefault:"player@example.com"`
	PlayerUsername string `env:"PLAYER_USERNAME" envDefault:"player"`
	PlayerFullName string `env:"PLAYER_FULL_NAME" envDefault:""`

	// Local JSON state for stores without a backend table.
	StateDir string `env:"STATE_DIR" envDefault:"./state"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
