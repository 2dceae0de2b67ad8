// Package config loads and validates the settings of a run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/naka-gawa/repo-miner/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Listing providers and commit sources.
const (
	ListingRemote = "remote"
	ListingLocal  = "local"
	HistoryREST   = "rest"
	HistoryGraph  = "graphql"
)

// Config holds every setting of a run. Zero values are replaced by defaults.
type Config struct {
	Repositories []string      `yaml:"repositories" validate:"required,min=1,dive,repoid"`
	WindowMonths int           `yaml:"window_months" validate:"min=1,max=240"`
	PageSize     int           `yaml:"page_size" validate:"min=1,max=100"`
	Suffix       string        `yaml:"suffix" validate:"required"`
	Listing      string        `yaml:"listing" validate:"oneof=remote local"`
	History      string        `yaml:"history" validate:"oneof=rest graphql"`
	CacheDir     string        `yaml:"cache_dir" validate:"required_if=Listing local"`
	Concurrency  int           `yaml:"concurrency" validate:"min=1,max=64"`
	Timeout      time.Duration `yaml:"timeout" validate:"min=0"`
	RPS          float64       `yaml:"rps" validate:"min=0"`
	APIURL       string        `yaml:"api_url" validate:"omitempty,url"`
	TokenEnv     string        `yaml:"token_env" validate:"required"`
	Output       string        `yaml:"output"`
	SQLitePath   string        `yaml:"sqlite"`
	MetricsFile  string        `yaml:"metrics_file"`
}

// Default returns a Config holding the defaults of every field.
func Default() Config {
	return Config{
		WindowMonths: 24,
		PageSize:     100,
		Suffix:       ".pp",
		Listing:      ListingRemote,
		History:      HistoryREST,
		CacheDir:     ".repo-cache",
		Concurrency:  1,
		Timeout:      10 * time.Minute,
		TokenEnv:     "GITHUB_TOKEN",
		Output:       "-",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("repoid", func(fl validator.FieldLevel) bool {
		return domain.ValidRepositoryID(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// Validate checks every field and returns an error wrapping ErrInvalid.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "repoid":
		return fmt.Sprintf("%s: %q is not an owner/name identifier", fe.Namespace(), fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
}

// RepositoryIDs parses the configured identifiers, in order.
func (c Config) RepositoryIDs() ([]domain.RepositoryID, error) {
	ids := make([]domain.RepositoryID, 0, len(c.Repositories))
	for _, s := range c.Repositories {
		id, err := domain.ParseRepositoryID(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Token loads .env files when present and returns the token held by the
// configured variable. An empty token is valid and means anonymous access.
func (c Config) Token() string {
	_ = godotenv.Load()
	return strings.TrimSpace(os.Getenv(c.TokenEnv))
}
