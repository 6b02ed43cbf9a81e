package operations

import (
	"fmt"
	"time"
)

// Default session timing
const (
	DefaultRecordPollInterval   = 3 * time.Second
	DefaultDocumentPollInterval = 2 * time.Second
	DefaultAutoSaveDelay        = 2 * time.Second
	DefaultAutoAdvanceDelay     = 1500 * time.Millisecond
)

// SessionOptions configures a wizard session
type SessionOptions struct {
	// ID names the session; NewSession generates one when empty.
	ID string
	// RecordID resumes editing an existing record.
	RecordID string

	RecordPollInterval   time.Duration
	DocumentPollInterval time.Duration
	AutoSaveDelay        time.Duration
	AutoAdvanceDelay     time.Duration
}

// DefaultSessionOptions returns the standard session timing
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		RecordPollInterval:   DefaultRecordPollInterval,
		DocumentPollInterval: DefaultDocumentPollInterval,
		AutoSaveDelay:        DefaultAutoSaveDelay,
		AutoAdvanceDelay:     DefaultAutoAdvanceDelay,
	}
}

// withDefaults fills unset durations from DefaultSessionOptions
func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.RecordPollInterval == 0 {
		o.RecordPollInterval = d.RecordPollInterval
	}
	if o.DocumentPollInterval == 0 {
		o.DocumentPollInterval = d.DocumentPollInterval
	}
	if o.AutoSaveDelay == 0 {
		o.AutoSaveDelay = d.AutoSaveDelay
	}
	if o.AutoAdvanceDelay == 0 {
		o.AutoAdvanceDelay = d.AutoAdvanceDelay
	}
	return o
}

// Validate rejects negative durations
func (o SessionOptions) Validate() error {
	for name, d := range map[string]time.Duration{
		"record poll interval":   o.RecordPollInterval,
		"document poll interval": o.DocumentPollInterval,
		"autosave delay":         o.AutoSaveDelay,
		"auto-advance delay":     o.AutoAdvanceDelay,
	} {
		if d < 0 {
			return NewValidationError("", fmt.Sprintf("%s must not be negative", name))
		}
	}
	return nil
}
