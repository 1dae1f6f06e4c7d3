package execshell_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/ark2op/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant         = "success"
	testExecutionFailureCaseNameConstant         = "failure_exit_code"
	testExecutionRunnerErrorCaseNameConstant     = "runner_error"
	testLoggerInitializationCaseNameConstant     = "logger_validation"
	testRunnerInitializationCaseNameConstant     = "runner_validation"
	testSuccessfulInitializationCaseNameConstant = "successful_initialization"
	testCommandArgumentConstant                  = "--version"
	testStandardErrorOutputConstant              = "failure"
	testSecretPayloadConstant                    = `{"fields":[{"value":"s3cr3t"}]}`
	testSecretValueConstant                      = "s3cr3t"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectError   error
		expectSuccess bool
	}{
		{
			name:        testLoggerInitializationCaseNameConstant,
			logger:      nil,
			runner:      &recordingCommandRunner{},
			expectError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:        testRunnerInitializationCaseNameConstant,
			logger:      zap.NewNop(),
			runner:      nil,
			expectError: execshell.ErrCommandRunnerNotConfigured,
		},
		{
			name:          testSuccessfulInitializationCaseNameConstant,
			logger:        zap.NewNop(),
			runner:        &recordingCommandRunner{},
			expectSuccess: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner, false)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
				return
			}
			require.ErrorIs(testInstance, creationError, testCase.expectError)
			require.Nil(testInstance, executor)
		})
	}
}

func TestShellExecutorExecuteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name             string
		runnerResult     execshell.ExecutionResult
		runnerError      error
		expectErrorType  any
		expectedLogCount int
	}{
		{
			name: testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardOutput: "ok",
				ExitCode:       0,
			},
			expectedLogCount: 2,
		},
		{
			name: testExecutionFailureCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardError: testStandardErrorOutputConstant,
				ExitCode:      1,
			},
			expectErrorType:  execshell.CommandFailedError{},
			expectedLogCount: 2,
		},
		{
			name:             testExecutionRunnerErrorCaseNameConstant,
			runnerError:      errors.New("runner failure"),
			expectErrorType:  execshell.CommandExecutionError{},
			expectedLogCount: 2,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observerLogs := observer.New(zap.DebugLevel)
			logger := zap.New(observerCore)

			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}

			shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner, false)
			require.NoError(testInstance, creationError)

			commandDetails := execshell.CommandDetails{Arguments: []string{testCommandArgumentConstant}}
			executionResult, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{Name: execshell.CommandOnePassword, Details: commandDetails})

			if testCase.expectErrorType != nil {
				require.Error(testInstance, executionError)
				require.IsType(testInstance, testCase.expectErrorType, executionError)
				require.Empty(testInstance, executionResult.StandardOutput)
			} else {
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, testCase.runnerResult.StandardOutput, executionResult.StandardOutput)
			}

			require.Len(testInstance, observerLogs.All(), testCase.expectedLogCount)
			require.Len(testInstance, recordingRunner.recordedCommands, 1)
			require.Equal(testInstance, execshell.CommandOnePassword, recordingRunner.recordedCommands[0].Name)
		})
	}
}

func TestShellExecutorRedactsSensitiveArguments(testInstance *testing.T) {
	for _, humanReadable := range []bool{false, true} {
		observerCore, observerLogs := observer.New(zap.DebugLevel)
		logger := zap.New(observerCore)

		recordingRunner := &recordingCommandRunner{
			executionResult: execshell.ExecutionResult{ExitCode: 1, StandardError: testStandardErrorOutputConstant},
		}
		shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner, humanReadable)
		require.NoError(testInstance, creationError)

		_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{
			Name: execshell.CommandOnePassword,
			Details: execshell.CommandDetails{
				Arguments:                []string{"item", "create", testSecretPayloadConstant},
				StandardInput:            []byte(testSecretValueConstant),
				SensitiveArgumentIndexes: []int{2},
			},
		})
		require.Error(testInstance, executionError)
		require.NotContains(testInstance, executionError.Error(), testSecretValueConstant)

		require.NotEmpty(testInstance, observerLogs.All())
		for _, loggedEntry := range observerLogs.All() {
			require.NotContains(testInstance, loggedEntry.Message, testSecretValueConstant)
			for _, loggedValue := range loggedEntry.ContextMap() {
				require.NotContains(testInstance, strings.ToLower(toString(loggedValue)), testSecretValueConstant)
			}
		}

		require.Equal(testInstance, testSecretPayloadConstant, recordingRunner.recordedCommands[0].Details.Arguments[2])
	}
}

func TestShellExecutorWithNilObserverSuppressesLifecycleLogs(testInstance *testing.T) {
	observerCore, observerLogs := observer.New(zap.DebugLevel)
	recordingRunner := &recordingCommandRunner{
		executionResult: execshell.ExecutionResult{ExitCode: 1, StandardError: testStandardErrorOutputConstant},
	}
	shellExecutor, creationError := execshell.NewShellExecutor(zap.New(observerCore), recordingRunner, false)
	require.NoError(testInstance, creationError)
	require.Same(testInstance, shellExecutor, shellExecutor.WithObserver(nil))

	_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{
		Name:    execshell.CommandOnePassword,
		Details: execshell.CommandDetails{Arguments: []string{testCommandArgumentConstant}},
	})
	require.Error(testInstance, executionError)
	require.Empty(testInstance, observerLogs.All())
	require.Len(testInstance, recordingRunner.recordedCommands, 1)
}

func TestShellCommandDisplayArgumentsIgnoresOutOfRangeIndexes(testInstance *testing.T) {
	command := execshell.ShellCommand{
		Name: execshell.CommandOnePassword,
		Details: execshell.CommandDetails{
			Arguments:                []string{"vault", "create"},
			SensitiveArgumentIndexes: []int{-1, 5},
		},
	}
	require.Equal(testInstance, []string{"vault", "create"}, command.DisplayArguments())
}

func TestOSCommandRunnerReportsExitCodes(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}

	runner := execshell.NewOSCommandRunner()
	executionResult, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: execshell.CommandName("sh"),
		Details: execshell.CommandDetails{
			Arguments:            []string{"-c", `read line; echo "$line-$ARK2OP_TEST_VALUE"; echo oops 1>&2; exit 3`},
			StandardInput:        []byte("input\n"),
			EnvironmentVariables: map[string]string{"ARK2OP_TEST_VALUE": "env"},
		},
	})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, 3, executionResult.ExitCode)
	require.Equal(testInstance, "input-env", strings.TrimSpace(executionResult.StandardOutput))
	require.Equal(testInstance, "oops", strings.TrimSpace(executionResult.StandardError))
}

func toString(value any) string {
	switch typedValue := value.(type) {
	case string:
		return typedValue
	case []any:
		parts := make([]string, 0, len(typedValue))
		for _, element := range typedValue {
			parts = append(parts, toString(element))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
