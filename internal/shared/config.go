package shared

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string `koanf:"app_env"`
	HTTPAddr    string `koanf:"http_addr"`
	MetricsAddr string `koanf:"metrics_addr"`

	// server
	MySQLDSN  string        `koanf:"mysql_dsn"`
	RedisAddr string        `koanf:"redis_addr"`
	RedisDB   int           `koanf:"redis_db"`
	RedisPass string        `koanf:"redis_password"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`

	// agent
	AgentAddr      string        `koanf:"agent_addr"`
	RemoteBaseURL  string        `koanf:"remote_base_url"`
	RemoteRPS      int           `koanf:"remote_rps"`
	OfflineDir     string        `koanf:"offline_dir"`
	DeviceSecret   string        `koanf:"device_secret"`
	ResponseTTL    time.Duration `koanf:"response_ttl"`
	ProbeInterval  time.Duration `koanf:"probe_interval"`
	PrefetchLimit  int           `koanf:"prefetch_limit"`
	StartOnline    bool          `koanf:"start_online"`
	SeedWorkers    int           `koanf:"seed_workers"`
	SeedPassword   string        `koanf:"seed_password"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

func defaults() Config {
	return Config{
		AppEnv:         "prod",
		HTTPAddr:       ":8080",
		MetricsAddr:    ":9100",
		MySQLDSN:       "root:root@tcp(localhost:3306)/housing?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		RedisAddr:      "localhost:6379",
		CacheTTL:       60 * time.Second,
		JWTSecret:      "",
		TokenTTL:       24 * time.Hour,
		AgentAddr:      "127.0.0.1:8787",
		RemoteBaseURL:  "http://localhost:8080/api",
		RemoteRPS:      10,
		OfflineDir:     "./offline-data",
		DeviceSecret:   "",
		ResponseTTL:    5 * time.Minute,
		ProbeInterval:  15 * time.Second,
		PrefetchLimit:  4,
		StartOnline:    true,
		SeedWorkers:    4,
		SeedPassword:   "password123",
		RequestTimeout: 20 * time.Second,
	}
}

// Load layers defaults, an optional YAML file (CONFIG_PATH) and the environment.
// Environment keys are the lower-cased variable names: HTTP_ADDR -> http_addr.
func Load() Config {
	c, err := load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty")
	}
	if c.DeviceSecret == "" {
		log.Warn().Msg("DEVICE_SECRET is empty; remembered passwords will not be stored")
	}
	return c
}

func load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, err
	}
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
