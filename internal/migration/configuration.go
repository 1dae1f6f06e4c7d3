package migration

import (
	"strings"
	"time"
)

const (
	defaultSourceTimeoutConstant      = 30 * time.Second
	defaultDestinationAccountConstant = "my"
)

// SourceConfiguration describes the CyberArk PVWA endpoint and service account.
type SourceConfiguration struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApplicationID  string        `mapstructure:"application_id"`
	Safe           string        `mapstructure:"safe"`
	Username       string        `mapstructure:"username"`
	UserObject     string        `mapstructure:"user_object"`
	PasswordSource string        `mapstructure:"password_source"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DestinationConfiguration describes how the 1Password CLI is invoked.
type DestinationConfiguration struct {
	CLIPath      string `mapstructure:"cli_path"`
	Account      string `mapstructure:"account"`
	TokenSource  string `mapstructure:"token_source"`
	ReuseSession bool   `mapstructure:"reuse_session"`
}

// CommandConfiguration captures persisted configuration for the migrate command.
type CommandConfiguration struct {
	Source        SourceConfiguration
	Destination   DestinationConfiguration
	JournalPath   string
	SummaryFormat string
}

// DefaultCommandConfiguration returns baseline configuration values for the migrate command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Source:        SourceConfiguration{Timeout: defaultSourceTimeoutConstant},
		Destination:   DestinationConfiguration{Account: defaultDestinationAccountConstant},
		SummaryFormat: string(SummaryFormatText),
	}
}

// Sanitize trims configured values and restores defaults for unusable ones.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration

	sanitized.Source.BaseURL = strings.TrimSpace(configuration.Source.BaseURL)
	sanitized.Source.ApplicationID = strings.TrimSpace(configuration.Source.ApplicationID)
	sanitized.Source.Safe = strings.TrimSpace(configuration.Source.Safe)
	sanitized.Source.Username = strings.TrimSpace(configuration.Source.Username)
	sanitized.Source.UserObject = strings.TrimSpace(configuration.Source.UserObject)
	sanitized.Source.PasswordSource = strings.TrimSpace(configuration.Source.PasswordSource)
	if sanitized.Source.Timeout <= 0 {
		sanitized.Source.Timeout = defaultSourceTimeoutConstant
	}

	sanitized.Destination.CLIPath = strings.TrimSpace(configuration.Destination.CLIPath)
	sanitized.Destination.Account = strings.TrimSpace(configuration.Destination.Account)
	if len(sanitized.Destination.Account) == 0 {
		sanitized.Destination.Account = defaultDestinationAccountConstant
	}
	sanitized.Destination.TokenSource = strings.TrimSpace(configuration.Destination.TokenSource)

	sanitized.JournalPath = strings.TrimSpace(configuration.JournalPath)
	sanitized.SummaryFormat = strings.TrimSpace(configuration.SummaryFormat)
	if len(sanitized.SummaryFormat) == 0 {
		sanitized.SummaryFormat = string(SummaryFormatText)
	}

	return sanitized
}
