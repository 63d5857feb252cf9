package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"      validate:"required"`
	Database    DatabaseConfig    `koanf:"database"`
	Engine      EngineConfig      `koanf:"engine"      validate:"required"`
	Definitions DefinitionsConfig `koanf:"definitions"`
}

type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`
}

type DatabaseConfig struct {
	// ConnString takes precedence over the discrete fields when set.
	ConnString  string `koanf:"conn_string"`
	Host        string `koanf:"host"`
	Port        string `koanf:"port"`
	User        string `koanf:"user"`
	Password    string `koanf:"password"`
	DBName      string `koanf:"name"`
	SSLMode     string `koanf:"ssl_mode"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// EngineConfig carries execution defaults applied when a step does not
// declare its own timeout or retry policy.
type EngineConfig struct {
	StepTimeout     time.Duration `koanf:"step_timeout"      validate:"gt=0"`
	MaxAttempts     int           `koanf:"max_attempts"      validate:"gte=1"`
	InitialInterval time.Duration `koanf:"initial_interval"  validate:"gt=0"`
	MaxInterval     time.Duration `koanf:"max_interval"      validate:"gt=0"`
	SchedulerTick   time.Duration `koanf:"scheduler_tick"    validate:"gt=0"`
}

type DefinitionsConfig struct {
	// Dir is scanned for *.yaml workflow definitions at startup.
	Dir string `koanf:"dir"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5310,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "opsflow",
			SSLMode: "disable",
		},
		Engine: EngineConfig{
			StepTimeout:     30 * time.Second,
			MaxAttempts:     3,
			InitialInterval: 1 * time.Second,
			MaxInterval:     30 * time.Second,
			SchedulerTick:   time.Minute,
		},
	}
}
