package migration

// UnitKind identifies the unit of work an outcome describes.
type UnitKind string

// Unit kinds.
const (
	UnitKindSession UnitKind = UnitKind("session")
	UnitKindVault   UnitKind = UnitKind("vault")
	UnitKindItem    UnitKind = UnitKind("item")
)

// UnitStatus describes how a unit of work ended.
type UnitStatus string

// Unit statuses.
const (
	UnitStatusSucceeded UnitStatus = UnitStatus("succeeded")
	UnitStatusSkipped   UnitStatus = UnitStatus("skipped")
	UnitStatusFatal     UnitStatus = UnitStatus("fatal")
)

// UnitOutcome is the typed result of one unit of work. It never carries secret values.
type UnitOutcome struct {
	Kind        UnitKind   `yaml:"kind"`
	Status      UnitStatus `yaml:"status"`
	SafeName    string     `yaml:"safe,omitempty"`
	AccountID   string     `yaml:"account_id,omitempty"`
	AccountName string     `yaml:"account,omitempty"`
	VaultID     string     `yaml:"vault_id,omitempty"`
	ItemID      string     `yaml:"item_id,omitempty"`
	Reason      string     `yaml:"reason,omitempty"`
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	SafesDiscovered    int           `yaml:"safes_discovered"`
	VaultsCreated      int           `yaml:"vaults_created"`
	VaultsSkipped      int           `yaml:"vaults_skipped"`
	AccountsDiscovered int           `yaml:"accounts_discovered"`
	ItemsCreated       int           `yaml:"items_created"`
	ItemsSkipped       int           `yaml:"items_skipped"`
	Outcomes           []UnitOutcome `yaml:"outcomes,omitempty"`
}

// Add appends the outcome and updates the tallies.
func (summary *Summary) Add(outcome UnitOutcome) {
	summary.Outcomes = append(summary.Outcomes, outcome)

	switch outcome.Kind {
	case UnitKindVault:
		switch outcome.Status {
		case UnitStatusSucceeded:
			summary.VaultsCreated++
		case UnitStatusSkipped:
			summary.VaultsSkipped++
		}
	case UnitKindItem:
		switch outcome.Status {
		case UnitStatusSucceeded:
			summary.ItemsCreated++
		case UnitStatusSkipped:
			summary.ItemsSkipped++
		}
	}
}

// Fatal reports whether the run ended at the session level.
func (summary Summary) Fatal() bool {
	for _, outcome := range summary.Outcomes {
		if outcome.Status == UnitStatusFatal {
			return true
		}
	}
	return false
}
