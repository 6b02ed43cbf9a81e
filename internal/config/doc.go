// Package config provides centralized configuration management for diveops.
// It loads configuration from environment variables and an optional YAML file,
// validates it, and exposes typed sections to the rest of the application.
//
// # Configuration Sources
//
// Configuration is resolved in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML file named by DIVEOPS_CONFIG_FILE, or ./config.yaml
//	3. Default values from struct tags (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern DIVEOPS_<SECTION>_<KEY>:
//
//	DIVEOPS_SERVER_PORT=8080
//	DIVEOPS_STORE_DRIVER=mysql
//	DIVEOPS_STORE_MYSQL_HOST=db.internal
//	DIVEOPS_WIZARD_AUTOSAVE_DELAY=2s
//	DIVEOPS_LOGGING_LEVEL=debug
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Tests that need a configuration without touching the environment use
// config.Default().
package config
