package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Grpc     GRPCConfig     `yaml:"grpc"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Password PasswordConfig `yaml:"password"`
	Storage  StorageConfig  `yaml:"storage"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
}

type GRPCConfig struct {
	Port    int           `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

type MetricsConfig struct {
	// Address is where /metrics is served. Empty disables the endpoint.
	Address string `yaml:"address" env:"METRICS_ADDRESS"`
}

type TokensConfig struct {
	Secret        string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	RefreshPepper string        `yaml:"refresh_pepper" env:"TOKEN_REFRESH_PEPPER"`
	AccessTTL     time.Duration `yaml:"access_ttl" env-default:"1h"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env-default:"168h"`
}

type PasswordConfig struct {
	Cost int `yaml:"cost" env-default:"12"`
}

type StorageConfig struct {
	Driver  string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
	Path    string        `yaml:"path" env:"STORAGE_PATH"`
	Timeout time.Duration `yaml:"timeout" env-default:"3s"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"subtrack"`
}

type RedisConfig struct {
	// Addr is host:port of the session cache. Empty runs without a cache.
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Timeout  time.Duration `yaml:"timeout" env-default:"200ms"`
}

// MustLoad reads the config file named by the -config flag or CONFIG_PATH.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath prefers the -config flag over the CONFIG_PATH env var.
func fetchConfigPath() string {
	var res string

	if f := flag.Lookup("config"); f != nil {
		res = f.Value.String()
	} else {
		flag.StringVar(&res, "config", "", "path to config file")
		flag.Parse()
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
