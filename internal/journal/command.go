package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ark2op/internal/utils"
)

const (
	commandUseConstant                = "history"
	commandShortDescriptionConstant   = "List recorded migration runs"
	commandLongDescriptionConstant    = "history lists the migration runs recorded in the journal, newest first, or the per-unit outcomes of a single run."
	limitFlagNameConstant             = "limit"
	limitFlagUsageConstant            = "Maximum number of runs to list"
	runFlagNameConstant               = "run"
	runFlagUsageConstant              = "Show the outcomes of the run with this identifier"
	formatFlagNameConstant            = "format"
	formatFlagUsageConstant           = "Output format: text, yaml or csv"
	journalDisabledMessageConstant    = "journal disabled: set migration.journal_path to record runs"
	journalOpenErrorTemplateConstant  = "unable to open journal: %w"
	logMessageJournalOpenedConstant   = "Journal opened"
	logFieldJournalPathConstant       = "journal_path"
	logFieldConfigurationFileConstant = "config_file"
)

// ErrJournalDisabled indicates no journal path is configured.
var ErrJournalDisabled = errors.New(journalDisabledMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Opener opens the journal at a path.
type Opener func(executionContext context.Context, databasePath string) (*Journal, error)

// CommandBuilder assembles the history Cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	Opener                Opener
}

// Build constructs the history command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runHistory,
	}

	command.Flags().Int(limitFlagNameConstant, 0, limitFlagUsageConstant)
	command.Flags().Int64(runFlagNameConstant, 0, runFlagUsageConstant)
	command.Flags().String(formatFlagNameConstant, "", formatFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runHistory(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()

	if command.Flags().Changed(limitFlagNameConstant) {
		limitValue, _ := command.Flags().GetInt(limitFlagNameConstant)
		configuration.Limit = limitValue
	}
	if command.Flags().Changed(formatFlagNameConstant) {
		formatValue, _ := command.Flags().GetString(formatFlagNameConstant)
		configuration.OutputFormat = formatValue
	}
	configuration = configuration.Sanitize()

	outputFormat, formatError := ParseOutputFormat(configuration.OutputFormat)
	if formatError != nil {
		return formatError
	}

	if len(configuration.JournalPath) == 0 {
		return ErrJournalDisabled
	}

	logger := builder.resolveLogger()

	journal, openError := builder.resolveOpener()(command.Context(), configuration.JournalPath)
	if openError != nil {
		return fmt.Errorf(journalOpenErrorTemplateConstant, openError)
	}
	defer journal.Close()
	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	logger.Debug(
		logMessageJournalOpenedConstant,
		zap.String(logFieldJournalPathConstant, configuration.JournalPath),
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
	)

	if command.Flags().Changed(runFlagNameConstant) {
		runID, _ := command.Flags().GetInt64(runFlagNameConstant)
		outcomes, outcomesError := journal.ListOutcomes(command.Context(), runID)
		if outcomesError != nil {
			return outcomesError
		}
		return WriteOutcomes(command.OutOrStdout(), outputFormat, outcomes)
	}

	runs, runsError := journal.ListRuns(command.Context(), configuration.Limit)
	if runsError != nil {
		return runsError
	}
	return WriteRuns(command.OutOrStdout(), outputFormat, runs)
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveOpener() Opener {
	if builder.Opener != nil {
		return builder.Opener
	}
	return Open
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}
