// Package config loads process configuration from environment variables
// using caarlos0/env, overlaying defaults with operator-supplied env
// vars.
package config

import "github.com/caarlos0/env/v11"

// Load parses environment variables into a new T according to its `env`
// struct tags and returns it. T must be a struct type.
func Load[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
