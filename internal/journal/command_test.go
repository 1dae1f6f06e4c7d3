package journal_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/ark2op/internal/journal"
	"github.com/temirov/ark2op/internal/utils"
)

func TestHistoryCommandRequiresJournalPath(testInstance *testing.T) {
	builder := journal.CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetArgs([]string{})
	command.SetOut(&bytes.Buffer{})
	executionError := command.Execute()
	require.ErrorIs(testInstance, executionError, journal.ErrJournalDisabled)
}

func TestHistoryCommandListsRunsAndOutcomes(testInstance *testing.T) {
	databasePath := filepath.Join(testInstance.TempDir(), "journal.db")

	seededJournal, openError := journal.Open(context.Background(), databasePath)
	require.NoError(testInstance, openError)
	runID, startError := seededJournal.StartRun(context.Background())
	require.NoError(testInstance, startError)
	require.NoError(testInstance, seededJournal.RecordOutcome(context.Background(), runID, journal.Outcome{Kind: "vault", Status: "succeeded", SafeName: "Network-Admin", VaultID: "vault-1"}))
	require.NoError(testInstance, seededJournal.FinishRun(context.Background(), runID, journal.RunStatusCompleted, journal.Tally{SafesDiscovered: 1, VaultsCreated: 1}))
	require.NoError(testInstance, seededJournal.Close())

	configuration := journal.DefaultCommandConfiguration()
	configuration.JournalPath = databasePath
	builder := journal.CommandBuilder{ConfigurationProvider: func() journal.CommandConfiguration { return configuration }}

	testCases := []struct {
		name             string
		arguments        []string
		expectedFragment string
	}{
		{name: "runs_text", arguments: []string{}, expectedFragment: "completed"},
		{name: "runs_csv", arguments: []string{"--format", "csv", "--limit", "1"}, expectedFragment: "run_id,started_at"},
		{name: "outcomes_yaml", arguments: []string{"--run", "1", "--format", "yaml"}, expectedFragment: "vault_id: vault-1"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			var output bytes.Buffer
			command.SetOut(&output)
			command.SetArgs(testCase.arguments)
			require.NoError(testInstance, command.Execute())
			require.Contains(testInstance, output.String(), testCase.expectedFragment)
		})
	}
}

func TestHistoryCommandLogsConfigurationFile(testInstance *testing.T) {
	databasePath := filepath.Join(testInstance.TempDir(), "journal.db")
	configurationFilePath := filepath.Join(testInstance.TempDir(), "config.yaml")

	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	builder := journal.CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.New(observedCore) },
		ConfigurationProvider: func() journal.CommandConfiguration {
			configuration := journal.DefaultCommandConfiguration()
			configuration.JournalPath = databasePath
			return configuration
		},
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	executionContext := utils.NewCommandContextAccessor().WithConfigurationFilePath(context.Background(), configurationFilePath)
	command.SetOut(&bytes.Buffer{})
	command.SetArgs([]string{})
	require.NoError(testInstance, command.ExecuteContext(executionContext))

	openedEntries := observedLogs.FilterMessage("Journal opened").All()
	require.Len(testInstance, openedEntries, 1)
	require.Equal(testInstance, configurationFilePath, openedEntries[0].ContextMap()["config_file"])
	require.Equal(testInstance, databasePath, openedEntries[0].ContextMap()["journal_path"])
}

func TestHistoryCommandRejectsUnknownFormat(testInstance *testing.T) {
	builder := journal.CommandBuilder{ConfigurationProvider: func() journal.CommandConfiguration {
		return journal.CommandConfiguration{JournalPath: filepath.Join(testInstance.TempDir(), "journal.db"), OutputFormat: "xml"}
	}}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetArgs([]string{})
	require.Error(testInstance, command.Execute())
}
