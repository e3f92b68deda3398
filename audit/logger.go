package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config defines audit logging configuration
type Config struct {
	Enabled bool                   `json:"enabled"`
	Type    ConfigType             `json:"type"`    // "file", "syslog", or empty for no-op
	Options map[string]interface{} `json:"options"` // Provider-specific options
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Logger interface for pluggable audit implementations.
//
// Audit events record that an establish, unlock, recovery or rotation
// happened and whether it succeeded. They carry fingerprints and metadata
// only; secret material, challenges and responses never reach a logger.
type Logger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Actions emitted by the secret provider.
const (
	ActionProviderInit    = "provider.init"
	ActionEstablish       = "secret.establish"
	ActionUnlock          = "secret.unlock"
	ActionRecover         = "secret.recover"
	ActionRotate          = "envelope.rotate"
	ActionEnvelopeBackup  = "envelope.backup"
	ActionEnvelopeRestore = "envelope.restore"
)

// Event represents an audit log event
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Database  string                 `json:"database,omitempty"`
	Slot      int                    `json:"slot,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
}

// QueryOptions for filtering audit logs
type QueryOptions struct {
	Since    *time.Time
	Until    *time.Time
	Action   string
	Success  *bool // nil = all, true = only success, false = only failures
	Database string
	Limit    int
	Offset   int
}

// QueryResult contains the results of an audit query
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// parseOptions converts map[string]interface{} to specific options struct
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}
