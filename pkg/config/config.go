package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Server struct {
		Port            int           `yaml:"port" default:"9090"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Alpaca struct {
		KeyID      string        `yaml:"key_id" validate:"required"`
		SecretKey  string        `yaml:"secret_key" validate:"required"`
		Feed       string        `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
		TradingURL string        `yaml:"trading_url" default:"https://paper-api.alpaca.markets"`
		DataURL    string        `yaml:"data_url" default:"https://data.alpaca.markets"`
		StreamURL  string        `yaml:"stream_url" default:"wss://stream.data.alpaca.markets/v2"`
		Timeout    time.Duration `yaml:"timeout" default:"30s"`
		MaxRetries int           `yaml:"max_retries" default:"5" validate:"min=1"`
	} `yaml:"alpaca"`

	Terminal struct {
		BaseURL  string        `yaml:"base_url" default:"http://localhost:5000"`
		Exchange string        `yaml:"exchange" default:"BATS"`
		OrderQty int           `yaml:"order_qty" default:"100" validate:"min=1"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"terminal"`

	Finviz struct {
		ScreenerURL string        `yaml:"screener_url" default:"https://finviz.com/screener.ashx?v=121&f=cap_largeover,sh_float_o1,ta_pattern_tlresistance&ft=4"`
		Timeout     time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"finviz"`

	Pivots struct {
		Count      int     `yaml:"count" default:"5" validate:"min=1"`
		BandScale  float64 `yaml:"band_scale" default:"3.0" validate:"gt=0"`
		StrictSlip float64 `yaml:"strict_slip" default:"0.1" validate:"gt=0"`
		WideSlip   float64 `yaml:"wide_slip" default:"0.5" validate:"gt=0"`
	} `yaml:"pivots"`

	Screener struct {
		Continuous          bool          `yaml:"continuous" default:"true"`
		CycleInterval       time.Duration `yaml:"cycle_interval" default:"30s"`
		MinDayVolume        float64       `yaml:"min_day_volume" default:"50000"`
		MinPrice            float64       `yaml:"min_price" default:"20"`
		MaxPrice            float64       `yaml:"max_price" default:"500"`
		MinMeanVolume       float64       `yaml:"min_mean_volume" default:"30000"`
		InitialProximity    float64       `yaml:"initial_proximity" default:"0.30" validate:"gt=0"`
		ContinuousProximity float64       `yaml:"continuous_proximity" default:"0.50" validate:"gt=0"`
		MinMinuteVolume     float64       `yaml:"min_minute_volume" default:"1000"`
	} `yaml:"screener"`

	Engine struct {
		MinuteVolumeGate float64 `yaml:"minute_volume_gate" default:"5000"`
		VolumeMultiple   float64 `yaml:"volume_multiple" default:"5"`
		OrderRetry       struct {
			MaxAttempts int           `yaml:"max_attempts" default:"2" validate:"min=1"`
			Delay       time.Duration `yaml:"delay" default:"1s"`
		} `yaml:"order_retry"`
	} `yaml:"engine"`

	Risk struct {
		PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
		MaxLoss      float64       `yaml:"max_loss" default:"-3"`
		MinProfit    float64       `yaml:"min_profit" default:"5"`
	} `yaml:"risk"`

	Session struct {
		CloseBuffer time.Duration `yaml:"close_buffer" default:"5m"`
	} `yaml:"session"`

	Cache struct {
		HistoryTTL time.Duration `yaml:"history_ttl" default:"24h"`
		Redis      struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file, applying struct
// defaults before validation.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and a few
// operational knobs with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("ALPACA_API_KEY_ID"); v != "" {
		c.Alpaca.KeyID = v
	}
	if v := os.Getenv("ALPACA_API_SECRET_KEY"); v != "" {
		c.Alpaca.SecretKey = v
	}
	if v := os.Getenv("TERMINAL_BASE_URL"); v != "" {
		c.Terminal.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CONTINUOUS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Screener.Continuous = b
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Screener.MinPrice >= c.Screener.MaxPrice {
		return fmt.Errorf("screener.min_price must be below screener.max_price")
	}
	if c.Risk.MaxLoss >= 0 {
		return fmt.Errorf("risk.max_loss must be negative")
	}
	if c.Risk.MinProfit <= 0 {
		return fmt.Errorf("risk.min_profit must be positive")
	}
	return nil
}
