package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"RESUB_DEBUG" envDefault:"false"`

	Reddit struct {
		ClientID     string `env:"REDDIT_CLIENT_ID"`
		ClientSecret string `env:"REDDIT_CLIENT_SECRET"`
		Username     string `env:"REDDIT_USERNAME"`
		Password     string `env:"REDDIT_PASSWORD"`
		UserAgent    string `env:"RESUB_USER_AGENT" envDefault:"resub/1.0"`
		APIURL       string `env:"REDDIT_API_URL" envDefault:"https://oauth.reddit.com"`
		TokenURL     string `env:"REDDIT_TOKEN_URL" envDefault:"https://www.reddit.com/api/v1/access_token"`
	}

	// Pacing of subscribe/unsubscribe calls
	Delay   time.Duration `env:"RESUB_DELAY" envDefault:"2s"`
	Retries int           `env:"RESUB_RETRIES" envDefault:"3"`
	Backoff time.Duration `env:"RESUB_BACKOFF" envDefault:"500ms"`
	Timeout time.Duration `env:"RESUB_TIMEOUT" envDefault:"30s"`
}

// Load reads .env from the working directory, if any, and then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the API commands cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Reddit.ClientID == "" {
		errs = append(errs, errors.New("REDDIT_CLIENT_ID is not set"))
	}
	if c.Reddit.Username == "" {
		errs = append(errs, errors.New("no username: pass --user or set REDDIT_USERNAME"))
	}
	if c.Reddit.Password == "" {
		errs = append(errs, errors.New("REDDIT_PASSWORD is not set"))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("RESUB_RETRIES must not be negative"))
	}
	if c.Delay < 0 {
		errs = append(errs, errors.New("RESUB_DELAY must not be negative"))
	}
	return errors.Join(errs...)
}
