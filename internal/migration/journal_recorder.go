package migration

import (
	"context"

	"github.com/temirov/ark2op/internal/journal"
)

// RunJournal is the subset of the journal used to record a migration run.
type RunJournal interface {
	StartRun(executionContext context.Context) (int64, error)
	RecordOutcome(executionContext context.Context, runID int64, outcome journal.Outcome) error
	FinishRun(executionContext context.Context, runID int64, status journal.RunStatus, tally journal.Tally) error
}

// JournalRecorder forwards outcomes of one run to the journal.
type JournalRecorder struct {
	runJournal RunJournal
	runID      int64
}

// StartJournalRecorder opens a new run in the journal.
func StartJournalRecorder(executionContext context.Context, runJournal RunJournal) (*JournalRecorder, error) {
	runID, startError := runJournal.StartRun(executionContext)
	if startError != nil {
		return nil, startError
	}
	return &JournalRecorder{runJournal: runJournal, runID: runID}, nil
}

// RunID returns the journal identifier of the run.
func (recorder *JournalRecorder) RunID() int64 {
	return recorder.runID
}

// RecordOutcome stores the outcome under the run.
func (recorder *JournalRecorder) RecordOutcome(executionContext context.Context, outcome UnitOutcome) error {
	return recorder.runJournal.RecordOutcome(executionContext, recorder.runID, journal.Outcome{
		Kind:        string(outcome.Kind),
		Status:      string(outcome.Status),
		SafeName:    outcome.SafeName,
		AccountID:   outcome.AccountID,
		AccountName: outcome.AccountName,
		VaultID:     outcome.VaultID,
		ItemID:      outcome.ItemID,
		Reason:      outcome.Reason,
	})
}

// Finish stores the final tally. Runs that ended with an error are marked failed.
func (recorder *JournalRecorder) Finish(executionContext context.Context, summary Summary, runError error) error {
	status := journal.RunStatusCompleted
	if runError != nil {
		status = journal.RunStatusFailed
	}
	return recorder.runJournal.FinishRun(context.WithoutCancel(executionContext), recorder.runID, status, journal.Tally{
		SafesDiscovered:    summary.SafesDiscovered,
		VaultsCreated:      summary.VaultsCreated,
		VaultsSkipped:      summary.VaultsSkipped,
		AccountsDiscovered: summary.AccountsDiscovered,
		ItemsCreated:       summary.ItemsCreated,
		ItemsSkipped:       summary.ItemsSkipped,
	})
}
