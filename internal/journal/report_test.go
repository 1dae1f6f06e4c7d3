package journal_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/ark2op/internal/journal"
)

func TestParseOutputFormat(testInstance *testing.T) {
	testCases := []struct {
		name           string
		value          string
		expectedFormat journal.OutputFormat
		expectError    bool
	}{
		{name: "empty_defaults_to_text", value: "", expectedFormat: journal.OutputFormatText},
		{name: "yaml_mixed_case", value: " YAML ", expectedFormat: journal.OutputFormatYAML},
		{name: "csv", value: "csv", expectedFormat: journal.OutputFormatCSV},
		{name: "unknown", value: "xml", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			format, parseError := journal.ParseOutputFormat(testCase.value)
			if testCase.expectError {
				require.Error(testInstance, parseError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedFormat, format)
		})
	}
}

func TestWriteRuns(testInstance *testing.T) {
	runs := []journal.Run{
		{
			ID:         2,
			StartedAt:  time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, time.March, 2, 9, 31, 0, 0, time.UTC),
			Status:     journal.RunStatusCompleted,
			Tally:      journal.Tally{SafesDiscovered: 2, VaultsCreated: 1, VaultsSkipped: 1, AccountsDiscovered: 3, ItemsCreated: 3},
		},
		{
			ID:        1,
			StartedAt: time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC),
			Status:    journal.RunStatusRunning,
		},
	}

	testInstance.Run("text", func(testInstance *testing.T) {
		var output bytes.Buffer
		require.NoError(testInstance, journal.WriteRuns(&output, journal.OutputFormatText, runs))
		require.Equal(testInstance,
			"run 2  completed  started 2026-03-02T09:30:00Z  finished 2026-03-02T09:31:00Z  vaults 1/2  items 3/3\n"+
				"run 1  running  started 2026-03-01T09:30:00Z  finished -  vaults 0/0  items 0/0\n",
			output.String())
	})

	testInstance.Run("csv", func(testInstance *testing.T) {
		var output bytes.Buffer
		require.NoError(testInstance, journal.WriteRuns(&output, journal.OutputFormatCSV, runs))
		require.Equal(testInstance,
			"run_id,started_at,finished_at,status,safes_discovered,vaults_created,vaults_skipped,accounts_discovered,items_created,items_skipped\n"+
				"2,2026-03-02T09:30:00Z,2026-03-02T09:31:00Z,completed,2,1,1,3,3,0\n"+
				"1,2026-03-01T09:30:00Z,-,running,0,0,0,0,0,0\n",
			output.String())
	})

	testInstance.Run("yaml", func(testInstance *testing.T) {
		var output bytes.Buffer
		require.NoError(testInstance, journal.WriteRuns(&output, journal.OutputFormatYAML, runs))

		var decoded []map[string]any
		require.NoError(testInstance, yaml.Unmarshal(output.Bytes(), &decoded))
		require.Len(testInstance, decoded, 2)
		require.Equal(testInstance, 2, decoded[0]["id"])
		require.Equal(testInstance, "completed", decoded[0]["status"])
		require.NotContains(testInstance, decoded[1], "finished_at")
	})

	testInstance.Run("empty_text", func(testInstance *testing.T) {
		var output bytes.Buffer
		require.NoError(testInstance, journal.WriteRuns(&output, journal.OutputFormatText, nil))
		require.Equal(testInstance, "No runs recorded\n", output.String())
	})

	testInstance.Run("unsupported", func(testInstance *testing.T) {
		require.Error(testInstance, journal.WriteRuns(&bytes.Buffer{}, journal.OutputFormat("xml"), runs))
	})
}

func TestWriteOutcomesText(testInstance *testing.T) {
	outcomes := []journal.Outcome{
		{RecordedAt: time.Date(2026, time.March, 2, 9, 30, 5, 0, time.UTC), Kind: "vault", Status: "succeeded", SafeName: "Network-Admin", VaultID: "vault-1"},
		{RecordedAt: time.Date(2026, time.March, 2, 9, 30, 6, 0, time.UTC), Kind: "item", Status: "skipped", SafeName: "Network-Admin", AccountID: "43", AccountName: "switch1", VaultID: "vault-1", Reason: "secret retrieval failed"},
	}

	var output bytes.Buffer
	require.NoError(testInstance, journal.WriteOutcomes(&output, journal.OutputFormatText, outcomes))
	require.Equal(testInstance,
		"2026-03-02T09:30:05Z  vault  succeeded  safe=Network-Admin  vault_id=vault-1\n"+
			"2026-03-02T09:30:06Z  item   skipped    safe=Network-Admin  account=switch1  vault_id=vault-1  reason=secret retrieval failed\n",
		output.String())

	var csvOutput bytes.Buffer
	require.NoError(testInstance, journal.WriteOutcomes(&csvOutput, journal.OutputFormatCSV, outcomes))
	require.Contains(testInstance, csvOutput.String(), "2026-03-02T09:30:06Z,item,skipped,Network-Admin,43,switch1,vault-1,,secret retrieval failed\n")
}
