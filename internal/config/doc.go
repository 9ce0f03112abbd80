// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Load reads the file, LoadWithDefaults fills unset fields, LoadAndValidate
// additionally rejects configurations the auction house cannot run with.
package config
