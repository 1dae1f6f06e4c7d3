package migration

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ark2op/internal/cyberark"
	"github.com/temirov/ark2op/internal/execshell"
	"github.com/temirov/ark2op/internal/journal"
	"github.com/temirov/ark2op/internal/onepassword"
	"github.com/temirov/ark2op/internal/tokensource"
	"github.com/temirov/ark2op/internal/utils"
)

const (
	commandUseConstant                      = "migrate"
	commandShortDescriptionConstant         = "Copy CyberArk safes and accounts into 1Password"
	commandLongDescriptionConstant          = "migrate authenticates against the CyberArk PVWA API, creates one 1Password vault per safe and one Login item per account, and prints a summary of created and skipped units. Re-running creates duplicates."
	summaryFormatFlagNameConstant           = "summary-format"
	summaryFormatFlagUsageConstant          = "Summary output format: text, yaml or none"
	journalPathFlagNameConstant             = "journal-path"
	journalPathFlagUsageConstant            = "SQLite journal recording the run (empty disables)"
	reuseSessionFlagNameConstant            = "reuse-session"
	reuseSessionFlagUsageConstant           = "Sign in to 1Password once and reuse the session for every call"
	destinationTokenResolutionErrorTemplate = "unable to resolve destination service account token: %w"
	sourcePasswordResolutionErrorTemplate   = "unable to resolve source service password: %w"
	sourceClientCreationErrorTemplate       = "unable to construct CyberArk client: %w"
	destinationClientCreationErrorTemplate  = "unable to construct 1Password client: %w"
	journalOpenErrorTemplateConstant        = "unable to open journal: %w"
	journalStartErrorTemplateConstant       = "unable to start journal run: %w"
	migrationExecutionErrorTemplateConstant = "migration failed: %w"
	summaryWriteErrorTemplateConstant       = "unable to print summary: %w"
	logMessageJournalRunStartedConstant     = "Journal run started"
	logMessageJournalFinishFailedConstant   = "Unable to finish journal run"
	logFieldJournalPathConstant             = "journal_path"
	logFieldJournalRunIDConstant            = "run_id"
	logMessageMigrationStartingConstant     = "Migration starting"
	logFieldConfigurationFileConstant       = "config_file"
	logFieldLogLevelConstant                = "log_level"
	logFieldSourceBaseURLConstant           = "source_base_url"
	logFieldDestinationAccountConstant      = "destination_account"
	logFieldReuseSessionConstant            = "reuse_session"
)

// ServiceProvider constructs a migration executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (MigrationExecutor, error)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	Executor                     onepassword.CommandExecutor
	HTTPClient                   cyberark.HTTPClient
	SecretResolver               tokensource.Resolver
	JournalOpener                journal.Opener
	ServiceProvider              ServiceProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigrate,
	}

	command.Flags().String(summaryFormatFlagNameConstant, "", summaryFormatFlagUsageConstant)
	command.Flags().String(journalPathFlagNameConstant, "", journalPathFlagUsageConstant)
	command.Flags().Bool(reuseSessionFlagNameConstant, false, reuseSessionFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	configuration := builder.parseConfiguration(command)

	summaryFormat, formatError := ParseSummaryFormat(configuration.SummaryFormat)
	if formatError != nil {
		return formatError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	logger := builder.resolveLogger()
	secretResolver := builder.resolveSecretResolver()

	contextAccessor := utils.NewCommandContextAccessor()
	configurationFilePath, _ := contextAccessor.ConfigurationFilePath(executionContext)
	logLevel, _ := contextAccessor.LogLevel(executionContext)
	logger.Debug(
		logMessageMigrationStartingConstant,
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
		zap.String(logFieldLogLevelConstant, logLevel),
		zap.String(logFieldSourceBaseURLConstant, configuration.Source.BaseURL),
		zap.String(logFieldDestinationAccountConstant, configuration.Destination.Account),
		zap.Bool(logFieldReuseSessionConstant, configuration.Destination.ReuseSession),
	)

	serviceAccountToken, tokenError := tokensource.ResolveDeclaration(executionContext, secretResolver, configuration.Destination.TokenSource)
	if tokenError != nil {
		return fmt.Errorf(destinationTokenResolutionErrorTemplate, tokenError)
	}

	sourcePassword := ""
	if len(configuration.Source.PasswordSource) > 0 {
		resolvedPassword, passwordError := tokensource.ResolveDeclaration(executionContext, secretResolver, configuration.Source.PasswordSource)
		if passwordError != nil {
			return fmt.Errorf(sourcePasswordResolutionErrorTemplate, passwordError)
		}
		sourcePassword = resolvedPassword
	}

	sourceClient, sourceClientError := cyberark.NewClient(builder.HTTPClient, cyberark.Configuration{
		BaseURL:            configuration.Source.BaseURL,
		ApplicationID:      configuration.Source.ApplicationID,
		AuthenticationSafe: configuration.Source.Safe,
		Username:           configuration.Source.Username,
		UserObject:         configuration.Source.UserObject,
		Password:           sourcePassword,
		Timeout:            configuration.Source.Timeout,
	})
	if sourceClientError != nil {
		return fmt.Errorf(sourceClientCreationErrorTemplate, sourceClientError)
	}

	executor, executorError := builder.resolveExecutor(logger, logLevel)
	if executorError != nil {
		return executorError
	}

	destinationClient, destinationClientError := onepassword.NewClient(executor, onepassword.Configuration{
		Executable:          configuration.Destination.CLIPath,
		Account:             configuration.Destination.Account,
		ServiceAccountToken: serviceAccountToken,
		ReuseSession:        configuration.Destination.ReuseSession,
	})
	if destinationClientError != nil {
		return fmt.Errorf(destinationClientCreationErrorTemplate, destinationClientError)
	}

	dependencies := ServiceDependencies{
		Logger:      logger,
		Source:      sourceClient,
		Destination: destinationClient,
	}

	var journalRecorder *JournalRecorder
	if len(configuration.JournalPath) > 0 {
		runJournal, openError := builder.resolveJournalOpener()(executionContext, configuration.JournalPath)
		if openError != nil {
			return fmt.Errorf(journalOpenErrorTemplateConstant, openError)
		}
		defer runJournal.Close()

		recorder, startError := StartJournalRecorder(executionContext, runJournal)
		if startError != nil {
			return fmt.Errorf(journalStartErrorTemplateConstant, startError)
		}
		journalRecorder = recorder
		dependencies.Recorder = recorder
		logger.Debug(
			logMessageJournalRunStartedConstant,
			zap.String(logFieldJournalPathConstant, configuration.JournalPath),
			zap.Int64(logFieldJournalRunIDConstant, recorder.RunID()),
		)
	}

	service, serviceError := builder.resolveService(dependencies)
	if serviceError != nil {
		return serviceError
	}

	summary, executionError := service.Execute(executionContext)

	if journalRecorder != nil {
		if finishError := journalRecorder.Finish(executionContext, summary, executionError); finishError != nil {
			logger.Warn(logMessageJournalFinishFailedConstant, zap.Int64(logFieldJournalRunIDConstant, journalRecorder.RunID()), zap.Error(finishError))
		}
	}

	if writeError := WriteSummary(command.OutOrStdout(), summaryFormat, summary); writeError != nil {
		return fmt.Errorf(summaryWriteErrorTemplateConstant, writeError)
	}

	if executionError != nil {
		return fmt.Errorf(migrationExecutionErrorTemplateConstant, executionError)
	}
	return nil
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := builder.resolveConfiguration()

	if command != nil {
		if command.Flags().Changed(summaryFormatFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(summaryFormatFlagNameConstant)
			configuration.SummaryFormat = flagValue
		}
		if command.Flags().Changed(journalPathFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(journalPathFlagNameConstant)
			configuration.JournalPath = flagValue
		}
		if command.Flags().Changed(reuseSessionFlagNameConstant) {
			flagValue, _ := command.Flags().GetBool(reuseSessionFlagNameConstant)
			configuration.Destination.ReuseSession = flagValue
		}
	}

	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// resolveExecutor mutes per-command lifecycle events at error level; the orchestrator
// still reports every failed unit with its cause.
func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger, logLevel string) (onepassword.CommandExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	commandRunner := execshell.NewOSCommandRunner()
	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}
	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner, humanReadableLogging)
	if creationError != nil {
		return nil, creationError
	}
	if strings.EqualFold(strings.TrimSpace(logLevel), string(utils.LogLevelError)) {
		shellExecutor.WithObserver(nil)
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveSecretResolver() tokensource.Resolver {
	if builder.SecretResolver != nil {
		return builder.SecretResolver
	}
	return tokensource.NewResolver(os.LookupEnv, os.ReadFile)
}

func (builder *CommandBuilder) resolveJournalOpener() journal.Opener {
	if builder.JournalOpener != nil {
		return builder.JournalOpener
	}
	return journal.Open
}

func (builder *CommandBuilder) resolveService(dependencies ServiceDependencies) (MigrationExecutor, error) {
	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}
