package execshell

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	consoleStartedMessageTemplateConstant          = "Running %s"
	consoleCompletedMessageTemplateConstant        = "Completed %s"
	consoleFailedExitCodeMessageTemplateConstant   = "%s failed with exit code %d"
	consoleExecutionFailureMessageTemplateConstant = "%s failed: %s"
	consoleArgumentsJoinSeparatorConstant          = " "
	consoleStandardErrorSuffixTemplateConstant     = ": %s"
	consoleUnknownFailureMessageConstant           = "unknown error"
)

// CommandEventObserver receives lifecycle notifications for shell command execution.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command ShellCommand)
	// CommandCompleted notifies observers that command execution finished and supplies the result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports unexpected failures prior to receiving an execution result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}

// ConsoleCommandEventObserver renders command lifecycle events as single human-readable lines.
type ConsoleCommandEventObserver struct {
	logger *zap.Logger
}

// NewConsoleCommandEventObserver constructs a console observer backed by the provided zap logger.
func NewConsoleCommandEventObserver(logger *zap.Logger) *ConsoleCommandEventObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventObserver{logger: logger}
}

// CommandStarted implements CommandEventObserver.
func (observer *ConsoleCommandEventObserver) CommandStarted(command ShellCommand) {
	observer.logger.Debug(fmt.Sprintf(consoleStartedMessageTemplateConstant, formatCommandLabel(command)))
}

// CommandCompleted implements CommandEventObserver.
func (observer *ConsoleCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	if result.ExitCode == 0 {
		observer.logger.Debug(fmt.Sprintf(consoleCompletedMessageTemplateConstant, formatCommandLabel(command)))
		return
	}
	message := fmt.Sprintf(consoleFailedExitCodeMessageTemplateConstant, formatCommandLabel(command), result.ExitCode)
	if trimmedStandardError := strings.TrimSpace(result.StandardError); len(trimmedStandardError) > 0 {
		message += fmt.Sprintf(consoleStandardErrorSuffixTemplateConstant, trimmedStandardError)
	}
	observer.logger.Warn(message)
}

// CommandExecutionFailed implements CommandEventObserver.
func (observer *ConsoleCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	failureMessage := consoleUnknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	observer.logger.Error(fmt.Sprintf(consoleExecutionFailureMessageTemplateConstant, formatCommandLabel(command), failureMessage))
}

func formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if displayArguments := command.DisplayArguments(); len(displayArguments) > 0 {
		commandParts = append(commandParts, strings.Join(displayArguments, consoleArgumentsJoinSeparatorConstant))
	}
	return strings.Join(commandParts, consoleArgumentsJoinSeparatorConstant)
}
