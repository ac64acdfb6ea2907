package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env           string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment"`
	ApiPort       int           `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	ApiHost       string        `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	ReadTimeout   time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env-default:"60s"`
	StorageDriver string        `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	SQLite        `yaml:"sqlite"`
	Postgres      `yaml:"postgres"`
	JWT           `yaml:"jwt"`
}

type SQLite struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"ledger.db"`
}

type Postgres struct {
	Host string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"POSTGRES_PORT" env-default:"5433"`
	User string `yaml:"user" env:"POSTGRES_USER"`
	Pass string `yaml:"pass" env:"POSTGRES_PASSWORD"`
	Db   string `yaml:"db" env:"POSTGRES_DB" env-default:"test_db"`
}

type JWT struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTTL  time.Duration `yaml:"access_ttl" env-default:"5m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"24h"`
}

func MustLoad() *Config {
	return MustLoadPath(fetchConfigPath())
}

func MustLoadPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	// Postgres credentials have no defaults and are checked only for that driver.
	if cfg.StorageDriver == DriverPostgres && (cfg.Postgres.User == "" || cfg.Postgres.Pass == "") {
		panic("postgres user and password are required (POSTGRES_USER, POSTGRES_PASSWORD)")
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
