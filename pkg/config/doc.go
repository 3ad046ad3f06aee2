// Package config loads typed configuration structs from the process
// environment.
//
// It wraps `github.com/joho/godotenv` (optional `.env` files) and
// `github.com/caarlos0/env/v11` (struct tag parsing). Each package in this
// module declares its own Config struct with `env` / `envDefault` tags; the
// process entry point composes them and loads the aggregate once:
//
//	type appConfig struct {
//	    HTTP  httpserver.Config
//	    Store store.Config
//	}
//
//	var cfg appConfig
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Loaded values are returned to the caller and never cached in package state,
// so tests can set environment variables and call Load again.
package config
