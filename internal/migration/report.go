package migration

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// SummaryFormat selects how the run summary is printed.
type SummaryFormat string

// Supported summary formats.
const (
	SummaryFormatText SummaryFormat = SummaryFormat("text")
	SummaryFormatYAML SummaryFormat = SummaryFormat("yaml")
	SummaryFormatNone SummaryFormat = SummaryFormat("none")
)

const (
	summaryHeaderConstant            = "Migration summary\n"
	summaryLineTemplateConstant      = "  %-20s %d\n"
	skippedHeaderConstant            = "Skipped units\n"
	skippedVaultTemplateConstant     = "  vault  %s: %s\n"
	skippedItemTemplateConstant      = "  item   %s/%s: %s\n"
	unsupportedSummaryFormatTemplate = "unsupported summary format %q"
	safesDiscoveredLabelConstant     = "safes discovered"
	vaultsCreatedLabelConstant       = "vaults created"
	vaultsSkippedLabelConstant       = "vaults skipped"
	accountsDiscoveredLabelConstant  = "accounts discovered"
	itemsCreatedLabelConstant        = "items created"
	itemsSkippedLabelConstant        = "items skipped"
)

// ParseSummaryFormat normalizes a configured summary format.
func ParseSummaryFormat(value string) (SummaryFormat, error) {
	switch SummaryFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", SummaryFormatText:
		return SummaryFormatText, nil
	case SummaryFormatYAML:
		return SummaryFormatYAML, nil
	case SummaryFormatNone:
		return SummaryFormatNone, nil
	}
	return "", fmt.Errorf(unsupportedSummaryFormatTemplate, value)
}

// WriteSummary renders the summary in the requested format.
func WriteSummary(writer io.Writer, format SummaryFormat, summary Summary) error {
	switch format {
	case SummaryFormatNone:
		return nil
	case SummaryFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if encodeError := encoder.Encode(summary); encodeError != nil {
			return encodeError
		}
		return encoder.Close()
	case SummaryFormatText:
		return writeTextSummary(writer, summary)
	}
	return fmt.Errorf(unsupportedSummaryFormatTemplate, format)
}

func writeTextSummary(writer io.Writer, summary Summary) error {
	var builder strings.Builder
	builder.WriteString(summaryHeaderConstant)
	for _, line := range []struct {
		label string
		count int
	}{
		{safesDiscoveredLabelConstant, summary.SafesDiscovered},
		{vaultsCreatedLabelConstant, summary.VaultsCreated},
		{vaultsSkippedLabelConstant, summary.VaultsSkipped},
		{accountsDiscoveredLabelConstant, summary.AccountsDiscovered},
		{itemsCreatedLabelConstant, summary.ItemsCreated},
		{itemsSkippedLabelConstant, summary.ItemsSkipped},
	} {
		fmt.Fprintf(&builder, summaryLineTemplateConstant, line.label, line.count)
	}

	if summary.VaultsSkipped+summary.ItemsSkipped > 0 {
		builder.WriteString(skippedHeaderConstant)
		for _, outcome := range summary.Outcomes {
			if outcome.Status != UnitStatusSkipped {
				continue
			}
			switch outcome.Kind {
			case UnitKindVault:
				fmt.Fprintf(&builder, skippedVaultTemplateConstant, outcome.SafeName, outcome.Reason)
			case UnitKindItem:
				fmt.Fprintf(&builder, skippedItemTemplateConstant, outcome.SafeName, outcome.AccountName, outcome.Reason)
			}
		}
	}

	_, writeError := io.WriteString(writer, builder.String())
	return writeError
}
