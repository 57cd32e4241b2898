package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Agent     AgentConfig     `yaml:"agent"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Search    SearchConfig    `yaml:"search"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Policy    PolicyConfig    `yaml:"policy"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

type RateLimitConfig struct {
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepGrace    time.Duration `yaml:"sweep_grace"`
}

// UpstreamConfig points at the OpenAI-compatible completion endpoint.
type UpstreamConfig struct {
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	Timeout         time.Duration     `yaml:"timeout"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	ClassifierModel string            `yaml:"classifier_model"`
}

// AgentConfig points at the agent runtime service.
type AgentConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
}

// KnowledgeConfig configures the knowledge-index search client.
type KnowledgeConfig struct {
	Host    string        `yaml:"host"`
	Scheme  string        `yaml:"scheme"`
	Class   string        `yaml:"class"`
	Limit   int           `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ExtractorConfig struct {
	Enabled bool          `yaml:"enabled"`
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "conduit",
			User:            "conduit",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		RateLimit: RateLimitConfig{
			Limit:         60,
			Window:        time.Minute,
			SweepInterval: 5 * time.Minute,
			SweepGrace:    10 * time.Minute,
		},
		Upstream: UpstreamConfig{
			BaseURL:         "http://localhost:8000/v1",
			Timeout:         120 * time.Second,
			ClassifierModel: "gpt-4o-mini",
		},
		Agent: AgentConfig{
			Endpoint:         "http://localhost:8100",
			Timeout:          60 * time.Second,
			FailureThreshold: 5,
			ProbeInterval:    15 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Host:    "localhost:8090",
			Scheme:  "http",
			Class:   "Passage",
			Limit:   5,
			Timeout: 5 * time.Second,
		},
		Search: SearchConfig{
			Endpoint: "http://localhost:8200/search",
			Timeout:  10 * time.Second,
		},
		Extractor: ExtractorConfig{
			Enabled: false,
			Address: "conduit-extractor:50051",
			Timeout: 15 * time.Second,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/conduit/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
	}
}
