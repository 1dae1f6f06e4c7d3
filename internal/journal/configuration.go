package journal

import "strings"

const defaultHistoryLimitConstant = 20

// CommandConfiguration captures persisted configuration for the history command.
type CommandConfiguration struct {
	JournalPath  string `mapstructure:"journal_path"`
	OutputFormat string `mapstructure:"history_format"`
	Limit        int    `mapstructure:"history_limit"`
}

// DefaultCommandConfiguration returns baseline configuration values for the history command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		OutputFormat: string(OutputFormatText),
		Limit:        defaultHistoryLimitConstant,
	}
}

// Sanitize trims configured values and restores defaults for unusable ones.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.JournalPath = strings.TrimSpace(configuration.JournalPath)
	sanitized.OutputFormat = strings.TrimSpace(configuration.OutputFormat)
	if len(sanitized.OutputFormat) == 0 {
		sanitized.OutputFormat = string(OutputFormatText)
	}
	if sanitized.Limit <= 0 {
		sanitized.Limit = defaultHistoryLimitConstant
	}
	return sanitized
}
