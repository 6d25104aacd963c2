package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"gopkg.in/yaml.v3"
)

// PasswordPolicy is consulted for every new password the engine accepts.
// A zero MaxLength means no upper bound.
type PasswordPolicy struct {
	MinLength int `yaml:"min_length" json:"min_length"`
	MaxLength int `yaml:"max_length" json:"max_length"`
}

// Validate implements validation.Validatable.
func (p PasswordPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxLength, validation.By(func(value any) error {
			limit, _ := value.(int)
			if limit != 0 && limit < p.MinLength {
				return errors.New("must be zero or at least min_length")
			}
			return nil
		})),
	)
}

// Check validates password against the policy.
func (p PasswordPolicy) Check(password string) error {
	return validation.Validate(password,
		validation.Required,
		validation.RuneLength(p.MinLength, p.MaxLength),
	)
}

// AttemptPolicy bounds retries and staleness for OTP and reset-token flows.
type AttemptPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
}

// Validate implements validation.Validatable.
func (p AttemptPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.TTL, validation.By(positiveDuration)),
	)
}

// DeletionPolicy configures the account deletion confirmation step.
type DeletionPolicy struct {
	ConfirmWindow time.Duration `yaml:"confirm_window" json:"confirm_window"`
}

// Validate implements validation.Validatable.
func (p DeletionPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ConfirmWindow, validation.By(positiveDuration)),
	)
}

// Config holds the policies the Manager consults.
type Config struct {
	Password         PasswordPolicy `yaml:"password" json:"password"`
	Verification     AttemptPolicy  `yaml:"verification" json:"verification"`
	Reset            AttemptPolicy  `yaml:"reset" json:"reset"`
	Deletion         DeletionPolicy `yaml:"deletion" json:"deletion"`
	Routes           Routes         `yaml:"routes" json:"routes"`
	ReloadAfterLogin bool           `yaml:"reload_after_login" json:"reload_after_login"`
	LogoutTimeout    time.Duration  `yaml:"logout_timeout" json:"logout_timeout"`
	PhoneRegion      string         `yaml:"phone_region" json:"phone_region"`
}

// DefaultConfig returns the policies used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		Password: PasswordPolicy{
			MinLength: 8,
			MaxLength: 128,
		},
		Verification: AttemptPolicy{
			MaxAttempts: 5,
			TTL:         15 * time.Minute,
		},
		Reset: AttemptPolicy{
			MaxAttempts: 3,
			TTL:         30 * time.Minute,
		},
		Deletion: DeletionPolicy{
			ConfirmWindow: 5 * time.Minute,
		},
		Routes:           DefaultRoutes(),
		ReloadAfterLogin: false,
		LogoutTimeout:    10 * time.Second,
		PhoneRegion:      "US",
	}
}

// Validate checks that every policy is usable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Password),
		validation.Field(&c.Verification),
		validation.Field(&c.Reset),
		validation.Field(&c.Deletion),
		validation.Field(&c.Routes),
		validation.Field(&c.LogoutTimeout, validation.By(positiveDuration)),
		validation.Field(&c.PhoneRegion, validation.Required, validation.Length(2, 2)),
	)
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, wrapError(ErrInternal, err, map[string]any{"path": path})
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, wrapError(ErrInternal, err, map[string]any{
			"path":   path,
			"reason": "invalid yaml",
		})
	}

	if err := cfg.Validate(); err != nil {
		return cfg, validationError("invalid configuration", err)
	}

	return cfg, nil
}

func positiveDuration(value any) error {
	d, ok := value.(time.Duration)
	if !ok {
		return fmt.Errorf("must be a duration")
	}
	if d <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}
