package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	redactedArgumentPlaceholderConstant       = "<redacted>"
	commandFailedErrorTemplateConstant        = "%s command exited with code %d"
	commandFailedWithOutputTemplateConstant   = "%s command exited with code %d: %s"
	commandExecutionErrorTemplateConstant     = "%s command execution failed: %s"
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	onePasswordCommandNameConstant            = "op"
)

// CommandName identifies the executable to invoke.
type CommandName string

// CommandOnePassword is the default 1Password CLI executable name.
const CommandOnePassword CommandName = CommandName(onePasswordCommandNameConstant)

// CommandDetails describes a single invocation of an executable.
type CommandDetails struct {
	Arguments                []string
	WorkingDirectory         string
	EnvironmentVariables     map[string]string
	StandardInput            []byte
	SensitiveArgumentIndexes []int
}

// ShellCommand combines an executable name with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// DisplayArguments returns the command arguments with sensitive values replaced by a placeholder.
func (command ShellCommand) DisplayArguments() []string {
	displayArguments := append([]string{}, command.Details.Arguments...)
	for _, sensitiveIndex := range command.Details.SensitiveArgumentIndexes {
		if sensitiveIndex < 0 || sensitiveIndex >= len(displayArguments) {
			continue
		}
		displayArguments[sensitiveIndex] = redactedArgumentPlaceholderConstant
	}
	return displayArguments
}

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command without exposing its arguments.
func (failedError CommandFailedError) Error() string {
	trimmedStandardError := strings.TrimSpace(failedError.Result.StandardError)
	if len(trimmedStandardError) == 0 {
		return fmt.Sprintf(commandFailedErrorTemplateConstant, failedError.Command.Name, failedError.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithOutputTemplateConstant, failedError.Command.Name, failedError.Result.ExitCode, trimmedStandardError)
}

// CommandExecutionError reports a command that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.Name, executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}
