package config

import "time"

// Application constants
const (
	AppName    = "diveops"
	AppVersion = "1.0.0"

	// Environment
	EnvPrefix     = "DIVEOPS"
	ConfigFileEnv = "DIVEOPS_CONFIG_FILE"

	// Store drivers
	StoreDriverMemory = "memory"
	StoreDriverMySQL  = "mysql"

	// Wizard timing
	DefaultRecordPollInterval   = 3 * time.Second
	DefaultDocumentPollInterval = 2 * time.Second
	DefaultAutoSaveDelay        = 2 * time.Second
	DefaultAutoAdvanceDelay     = 1500 * time.Millisecond
	DefaultMaxSessions          = 100

	// Rate Limiting
	DefaultRateLimit = 100
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultRequestTimeout = 30 * time.Second
	WebSocketPingPeriod   = 30 * time.Second
	WebSocketPongWait     = 60 * time.Second
)
