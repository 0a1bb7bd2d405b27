// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

// ErrNoSecret is returned by Load when jwt.secret is missing
var ErrNoSecret = errors.New("no JWT secret configured")

var (
	configDir = pflag.String("config", ".", "Directory containing config.toml")

	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validDBTypes      = []string{"sqlite", "postgres"}
	validMailDelivery = []string{"direct", "queue"}
	validCacheTypes   = []string{"memory", "redis"}
)

// keys can all be overridden by environment variables named after them, e.g.
// JWT_SECRET for jwt.secret
var keys = []string{
	"app.log_level",
	"host.port", "host.domain", "host.ssl_enabled", "host.cors",
	"jwt.secret", "jwt.ttl", "jwt.header",
	"db.type", "db.path", "db.dsn",
	"argon.memory", "argon.iterations", "argon.parallelism",
	"mail.enabled", "mail.delivery", "mail.host", "mail.port", "mail.username", "mail.password", "mail.from",
	"redis.addr", "redis.password",
	"cache.type", "cache.ttl",
	"http.body_limit",
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.AddConfigPath(*configDir)

	err := Load()
	if errors.Is(err, ErrNoSecret) {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	return err
}

// Load reads config.toml (if there is one), the environment and the
// defaults into viper and validates the result.
func Load() error {
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	//
	// ENVS
	//
	for _, k := range keys {
		v.BindEnv(k)
	}

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost")
	v.SetDefault("host.ssl_enabled", false)
	v.SetDefault("host.cors", []string{"http://localhost:3000"})

	v.SetDefault("jwt.ttl", "0s")
	v.SetDefault("jwt.header", "x-jwt")

	v.SetDefault("db.type", "sqlite")
	v.SetDefault("db.path", "eats.db")

	v.SetDefault("argon.memory", 64*1024)
	v.SetDefault("argon.iterations", 3)
	v.SetDefault("argon.parallelism", 2)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.delivery", "direct")
	v.SetDefault("mail.port", 587)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "1m")

	v.SetDefault("http.body_limit", 1<<20)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: config.toml not found, using defaults and environment")
	}

	return validate()
}

func validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetString("jwt.secret") == "" {
		return ErrNoSecret
	}

	if v.GetDuration("jwt.ttl") < 0 {
		return errors.New("jwt.ttl can't be negative")
	}

	if v.GetString("jwt.header") == "" {
		return errors.New("jwt.header can't be empty")
	}

	switch v.GetString("db.type") {
	case "sqlite":
		if v.GetString("db.path") == "" {
			return errors.New("db.path can't be empty")
		}
	case "postgres":
		if v.GetString("db.dsn") == "" {
			return errors.New("db.dsn can't be empty")
		}
	}

	if !slices.Contains(validDBTypes, v.GetString("db.type")) {
		return errors.New("invalid database type provided")
	}

	if v.GetUint32("argon.memory") == 0 || v.GetUint32("argon.iterations") == 0 || v.GetUint("argon.parallelism") == 0 {
		return errors.New("argon parameters must be bigger than 0")
	}

	if v.GetUint("argon.parallelism") > 255 {
		return errors.New("argon.parallelism can't be bigger than 255")
	}

	if !slices.Contains(validMailDelivery, v.GetString("mail.delivery")) {
		return errors.New("invalid mail delivery provided")
	}

	if v.GetBool("mail.enabled") {
		if v.GetString("mail.host") == "" {
			return errors.New("mail.host can't be empty")
		}
		if v.GetString("mail.from") == "" {
			return errors.New("mail.from can't be empty")
		}
	} else {
		fmt.Println("[WARNING]: Mail is disabled. Verification codes will only be logged")
	}

	if !slices.Contains(validCacheTypes, v.GetString("cache.type")) {
		return errors.New("invalid cache type provided")
	}

	needsRedis := v.GetString("cache.type") == "redis" ||
		(v.GetBool("mail.enabled") && v.GetString("mail.delivery") == "queue")
	if needsRedis && v.GetString("redis.addr") == "" {
		return errors.New("redis.addr can't be empty")
	}

	if v.GetDuration("cache.ttl") <= 0 {
		return errors.New("cache.ttl must be bigger than 0")
	}

	if v.GetInt64("http.body_limit") <= 0 {
		return errors.New("http.body_limit must be bigger than 0")
	}

	return nil
}
