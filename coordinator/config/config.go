/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

// Package config loads the coordinator's settings from environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/edgelesssys/dextmanager/coordinator/constants"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Activator kinds.
const (
	ActivatorPlatform    = "platform"
	ActivatorHelper      = "helper"
	ActivatorSimulate    = "simulate"
	ActivatorUnsupported = "unsupported"
)

// Config holds the coordinator's settings.
type Config struct {
	BundleID   string `mapstructure:"bundle_id" validate:"required"`
	DriverName string `mapstructure:"driver_name" validate:"required"`

	ClientAddr string `mapstructure:"client_addr" validate:"required,hostname_port"`
	PromAddr   string `mapstructure:"prometheus_addr" validate:"omitempty,hostname_port"`

	Activator        string        `mapstructure:"activator" validate:"oneof=platform helper simulate unsupported"`
	HelperPath       string        `mapstructure:"helper_path" validate:"required_if=Activator helper"`
	SimulateScenario string        `mapstructure:"simulate_scenario" validate:"scenario"`
	SimulateDelay    time.Duration `mapstructure:"simulate_delay" validate:"gte=0"`

	DataDir         string `mapstructure:"data_dir"`
	ActivateOnStart bool   `mapstructure:"activate_on_start"`

	DevMode      bool   `mapstructure:"dev_mode"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

// SetDefaults implements defaults.Setter.
func (c *Config) SetDefaults() {
	setDefault(&c.DriverName, constants.DriverNameDefault)
	setDefault(&c.ClientAddr, constants.ClientAddrDefault)
	setDefault(&c.Activator, constants.ActivatorDefault)
	setDefault(&c.SimulateScenario, constants.SimulateScenarioDefault)
	setDefault(&c.SimulateDelay, constants.SimulateDelayDefault)
	if defaults.CanUpdate(c.DataDir) {
		c.DataDir = constants.DataDirDefault()
	}
}

func setDefault[T comparable](field *T, value T) {
	if defaults.CanUpdate(*field) {
		*field = value
	}
}

var envKeys = map[string]string{
	"bundle_id":         constants.BundleID,
	"driver_name":       constants.DriverName,
	"client_addr":       constants.ClientAddr,
	"prometheus_addr":   constants.PromAddr,
	"activator":         constants.Activator,
	"helper_path":       constants.HelperPath,
	"simulate_scenario": constants.SimulateScenario,
	"simulate_delay":    constants.SimulateDelay,
	"data_dir":          constants.DataDir,
	"activate_on_start": constants.ActivateOnStart,
	"dev_mode":          constants.DevMode,
	"debug_logging":     constants.DebugLogging,
	"log_file":          constants.LogFile,
}

// Load reads the configuration.
// Settings are taken from the environment, then from the YAML file at path if path is not empty,
// and finally from the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding environment variable %s: %w", env, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("setting defaults: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("scenario", func(fl validator.FieldLevel) bool {
		return slices.Contains(sysext.Scenarios(), fl.Field().String())
	}); err != nil {
		return err
	}

	err := validate.Struct(c)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), validationMessage(fe)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required if %s", fe.Param())
	case "hostname_port":
		return fmt.Sprintf("must be a host:port address, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "scenario":
		return fmt.Sprintf("must be one of: %s", strings.Join(sysext.Scenarios(), " "))
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}
