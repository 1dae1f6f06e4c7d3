package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how history is rendered.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatText OutputFormat = OutputFormat("text")
	OutputFormatYAML OutputFormat = OutputFormat("yaml")
	OutputFormatCSV  OutputFormat = OutputFormat("csv")
)

const (
	runTextTemplateConstant        = "run %d  %s  started %s  finished %s  vaults %d/%d  items %d/%d\n"
	outcomeTextTemplateConstant    = "%s  %-5s  %-9s  safe=%s%s\n"
	outcomeDetailTemplateConstant  = "  %s=%s"
	noRunsMessageConstant          = "No runs recorded\n"
	noOutcomesMessageConstant      = "No outcomes recorded\n"
	unfinishedPlaceholderConstant  = "-"
	unsupportedFormatTemplate      = "unsupported output format %q"
	csvHeaderRunIDConstant         = "run_id"
	csvHeaderStartedAtConstant     = "started_at"
	csvHeaderFinishedAtConstant    = "finished_at"
	csvHeaderStatusConstant        = "status"
	csvHeaderSafesConstant         = "safes_discovered"
	csvHeaderVaultsCreatedConstant = "vaults_created"
	csvHeaderVaultsSkippedConstant = "vaults_skipped"
	csvHeaderAccountsConstant      = "accounts_discovered"
	csvHeaderItemsCreatedConstant  = "items_created"
	csvHeaderItemsSkippedConstant  = "items_skipped"
	csvHeaderRecordedAtConstant    = "recorded_at"
	csvHeaderKindConstant          = "kind"
	csvHeaderSafeConstant          = "safe"
	csvHeaderAccountIDConstant     = "account_id"
	csvHeaderAccountConstant       = "account"
	csvHeaderVaultIDConstant       = "vault_id"
	csvHeaderItemIDConstant        = "item_id"
	csvHeaderReasonConstant        = "reason"
)

// ParseOutputFormat normalizes a configured format name.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", OutputFormatText:
		return OutputFormatText, nil
	case OutputFormatYAML:
		return OutputFormatYAML, nil
	case OutputFormatCSV:
		return OutputFormatCSV, nil
	}
	return "", fmt.Errorf(unsupportedFormatTemplate, value)
}

// WriteRuns renders runs in the requested format.
func WriteRuns(writer io.Writer, format OutputFormat, runs []Run) error {
	switch format {
	case OutputFormatYAML:
		return writeYAML(writer, runs)
	case OutputFormatCSV:
		records := [][]string{{
			csvHeaderRunIDConstant,
			csvHeaderStartedAtConstant,
			csvHeaderFinishedAtConstant,
			csvHeaderStatusConstant,
			csvHeaderSafesConstant,
			csvHeaderVaultsCreatedConstant,
			csvHeaderVaultsSkippedConstant,
			csvHeaderAccountsConstant,
			csvHeaderItemsCreatedConstant,
			csvHeaderItemsSkippedConstant,
		}}
		for _, run := range runs {
			records = append(records, []string{
				strconv.FormatInt(run.ID, 10),
				formatTimestamp(run.StartedAt),
				formatTimestamp(run.FinishedAt),
				string(run.Status),
				strconv.Itoa(run.Tally.SafesDiscovered),
				strconv.Itoa(run.Tally.VaultsCreated),
				strconv.Itoa(run.Tally.VaultsSkipped),
				strconv.Itoa(run.Tally.AccountsDiscovered),
				strconv.Itoa(run.Tally.ItemsCreated),
				strconv.Itoa(run.Tally.ItemsSkipped),
			})
		}
		return writeCSV(writer, records)
	case OutputFormatText:
		if len(runs) == 0 {
			_, writeError := io.WriteString(writer, noRunsMessageConstant)
			return writeError
		}
		for _, run := range runs {
			if _, writeError := fmt.Fprintf(
				writer,
				runTextTemplateConstant,
				run.ID,
				run.Status,
				formatTimestamp(run.StartedAt),
				formatTimestamp(run.FinishedAt),
				run.Tally.VaultsCreated,
				run.Tally.SafesDiscovered,
				run.Tally.ItemsCreated,
				run.Tally.AccountsDiscovered,
			); writeError != nil {
				return writeError
			}
		}
		return nil
	}
	return fmt.Errorf(unsupportedFormatTemplate, format)
}

// WriteOutcomes renders the outcomes of one run in the requested format.
func WriteOutcomes(writer io.Writer, format OutputFormat, outcomes []Outcome) error {
	switch format {
	case OutputFormatYAML:
		return writeYAML(writer, outcomes)
	case OutputFormatCSV:
		records := [][]string{{
			csvHeaderRecordedAtConstant,
			csvHeaderKindConstant,
			csvHeaderStatusConstant,
			csvHeaderSafeConstant,
			csvHeaderAccountIDConstant,
			csvHeaderAccountConstant,
			csvHeaderVaultIDConstant,
			csvHeaderItemIDConstant,
			csvHeaderReasonConstant,
		}}
		for _, outcome := range outcomes {
			records = append(records, []string{
				formatTimestamp(outcome.RecordedAt),
				outcome.Kind,
				outcome.Status,
				outcome.SafeName,
				outcome.AccountID,
				outcome.AccountName,
				outcome.VaultID,
				outcome.ItemID,
				outcome.Reason,
			})
		}
		return writeCSV(writer, records)
	case OutputFormatText:
		if len(outcomes) == 0 {
			_, writeError := io.WriteString(writer, noOutcomesMessageConstant)
			return writeError
		}
		for _, outcome := range outcomes {
			var details strings.Builder
			for _, detail := range [][2]string{
				{csvHeaderAccountConstant, outcome.AccountName},
				{csvHeaderVaultIDConstant, outcome.VaultID},
				{csvHeaderItemIDConstant, outcome.ItemID},
				{csvHeaderReasonConstant, outcome.Reason},
			} {
				if len(detail[1]) > 0 {
					fmt.Fprintf(&details, outcomeDetailTemplateConstant, detail[0], detail[1])
				}
			}
			if _, writeError := fmt.Fprintf(writer, outcomeTextTemplateConstant, formatTimestamp(outcome.RecordedAt), outcome.Kind, outcome.Status, outcome.SafeName, details.String()); writeError != nil {
				return writeError
			}
		}
		return nil
	}
	return fmt.Errorf(unsupportedFormatTemplate, format)
}

func writeYAML(writer io.Writer, value any) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if encodeError := encoder.Encode(value); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}

func writeCSV(writer io.Writer, records [][]string) error {
	csvWriter := csv.NewWriter(writer)
	if writeError := csvWriter.WriteAll(records); writeError != nil {
		return writeError
	}
	return csvWriter.Error()
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return unfinishedPlaceholderConstant
	}
	return value.UTC().Format(time.RFC3339)
}
