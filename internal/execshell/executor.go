package execshell

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	commandStartedLogMessageConstant   = "Executing external command"
	commandCompletedLogMessageConstant = "External command completed"
	commandFailedLogMessageConstant    = "External command failed"
	commandErroredLogMessageConstant   = "External command could not be executed"
	logFieldCommandNameConstant        = "command"
	logFieldArgumentsConstant          = "arguments"
	logFieldWorkingDirectoryConstant   = "working_directory"
	logFieldExitCodeConstant           = "exit_code"
	logFieldStandardErrorConstant      = "stderr"
	logFieldStandardInputConstant      = "stdin_provided"
)

// ShellExecutor runs external commands, logging each lifecycle event.
type ShellExecutor struct {
	logger   *zap.Logger
	runner   CommandRunner
	observer CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor. When humanReadableLogging is enabled the
// lifecycle events are rendered by a console observer instead of structured log entries.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	var observer CommandEventObserver = structuredCommandEventObserver{logger: logger}
	if humanReadableLogging {
		observer = NewConsoleCommandEventObserver(logger)
	}

	return &ShellExecutor{logger: logger, runner: runner, observer: observer}, nil
}

// WithObserver replaces the lifecycle observer.
func (executor *ShellExecutor) WithObserver(observer CommandEventObserver) *ShellExecutor {
	if observer == nil {
		observer = noopCommandEventObserver{}
	}
	executor.observer = observer
	return executor
}

// Execute runs the command, translating non-zero exits into CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.observer.CommandStarted(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, executionResult)
	if executionResult.ExitCode != 0 {
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}

type structuredCommandEventObserver struct {
	logger *zap.Logger
}

func (observer structuredCommandEventObserver) CommandStarted(command ShellCommand) {
	observer.logger.Debug(
		commandStartedLogMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.DisplayArguments()),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
		zap.Bool(logFieldStandardInputConstant, len(command.Details.StandardInput) > 0),
	)
}

func (observer structuredCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	if result.ExitCode == 0 {
		observer.logger.Debug(
			commandCompletedLogMessageConstant,
			zap.String(logFieldCommandNameConstant, string(command.Name)),
			zap.Strings(logFieldArgumentsConstant, command.DisplayArguments()),
		)
		return
	}
	observer.logger.Warn(
		commandFailedLogMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.DisplayArguments()),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, strings.TrimSpace(result.StandardError)),
	)
}

func (observer structuredCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	observer.logger.Error(
		commandErroredLogMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.DisplayArguments()),
		zap.Error(failure),
	)
}
