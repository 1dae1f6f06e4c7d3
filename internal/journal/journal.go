package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverNameConstant               = "sqlite"
	dataSourceTemplateConstant             = "file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	timestampLayoutConstant                = time.RFC3339Nano
	directoryPermissionsConstant           = 0o700
	databaseNotConfiguredMessageConstant   = "journal database not configured"
	runNotFoundMessageConstant             = "journal run not found"
	pathRequiredMessageConstant            = "journal path required"
	openDatabaseErrorTemplateConstant      = "open journal %s: %w"
	pingDatabaseErrorTemplateConstant      = "ping journal %s: %w"
	createDirectoryErrorTemplateConstant   = "create journal directory %s: %w"
	startRunErrorTemplateConstant          = "start journal run: %w"
	recordOutcomeErrorTemplateConstant     = "record outcome for run %d: %w"
	finishRunErrorTemplateConstant         = "finish journal run %d: %w"
	listRunsErrorTemplateConstant          = "list journal runs: %w"
	listOutcomesErrorTemplateConstant      = "list outcomes for run %d: %w"
	parseTimestampErrorTemplateConstant    = "parse journal timestamp %q: %w"
	checkRowsAffectedErrorTemplateConstant = "check rows affected: %w"
)

// RunStatus describes the lifecycle state of a recorded run.
type RunStatus string

// Run status enumerations.
const (
	RunStatusRunning   RunStatus = RunStatus("running")
	RunStatusCompleted RunStatus = RunStatus("completed")
	RunStatusFailed    RunStatus = RunStatus("failed")
)

// dataSourcePathEscaper percent-encodes the characters SQLite URI filenames treat as delimiters.
var dataSourcePathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

var (
	// ErrDatabaseNotConfigured indicates the journal was constructed without a database handle.
	ErrDatabaseNotConfigured = errors.New(databaseNotConfiguredMessageConstant)
	// ErrRunNotFound indicates the referenced run does not exist.
	ErrRunNotFound = errors.New(runNotFoundMessageConstant)
	// ErrPathRequired indicates Open was called without a database path.
	ErrPathRequired = errors.New(pathRequiredMessageConstant)
)

// Tally counts the units processed during a run.
type Tally struct {
	SafesDiscovered    int `yaml:"safes_discovered"`
	VaultsCreated      int `yaml:"vaults_created"`
	VaultsSkipped      int `yaml:"vaults_skipped"`
	AccountsDiscovered int `yaml:"accounts_discovered"`
	ItemsCreated       int `yaml:"items_created"`
	ItemsSkipped       int `yaml:"items_skipped"`
}

// Run is a recorded migration run.
type Run struct {
	ID         int64     `yaml:"id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at,omitempty"`
	Status     RunStatus `yaml:"status"`
	Tally      Tally     `yaml:"tally"`
}

// Outcome is a recorded unit result. It carries names and identifiers only.
type Outcome struct {
	RecordedAt  time.Time `yaml:"recorded_at"`
	Kind        string    `yaml:"kind"`
	Status      string    `yaml:"status"`
	SafeName    string    `yaml:"safe"`
	AccountID   string    `yaml:"account_id,omitempty"`
	AccountName string    `yaml:"account,omitempty"`
	VaultID     string    `yaml:"vault_id,omitempty"`
	ItemID      string    `yaml:"item_id,omitempty"`
	Reason      string    `yaml:"reason,omitempty"`
}

// Journal persists runs and outcomes.
type Journal struct {
	database *sql.DB
	clock    func() time.Time
}

// Open creates (when needed) and migrates the SQLite journal at the given path.
func Open(executionContext context.Context, databasePath string) (*Journal, error) {
	trimmedPath := strings.TrimSpace(databasePath)
	if len(trimmedPath) == 0 {
		return nil, ErrPathRequired
	}

	if directory := filepath.Dir(trimmedPath); len(directory) > 0 {
		if mkdirError := os.MkdirAll(directory, directoryPermissionsConstant); mkdirError != nil {
			return nil, fmt.Errorf(createDirectoryErrorTemplateConstant, directory, mkdirError)
		}
	}

	database, openError := sql.Open(sqliteDriverNameConstant, dataSourceName(trimmedPath))
	if openError != nil {
		return nil, fmt.Errorf(openDatabaseErrorTemplateConstant, trimmedPath, openError)
	}
	database.SetMaxOpenConns(1)

	if pingError := database.PingContext(executionContext); pingError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(pingDatabaseErrorTemplateConstant, trimmedPath, pingError)
	}

	if migrationError := RunMigrations(database); migrationError != nil {
		_ = database.Close()
		return nil, migrationError
	}

	return New(database)
}

func dataSourceName(databasePath string) string {
	return fmt.Sprintf(dataSourceTemplateConstant, dataSourcePathEscaper.Replace(filepath.ToSlash(databasePath)))
}

// New wraps an already migrated database handle.
func New(database *sql.DB) (*Journal, error) {
	if database == nil {
		return nil, ErrDatabaseNotConfigured
	}
	return &Journal{database: database, clock: time.Now}, nil
}

// WithClock replaces the time source.
func (journal *Journal) WithClock(clock func() time.Time) *Journal {
	if clock != nil {
		journal.clock = clock
	}
	return journal
}

// Close releases the database handle.
func (journal *Journal) Close() error {
	return journal.database.Close()
}

// StartRun inserts a running run and returns its identifier.
func (journal *Journal) StartRun(executionContext context.Context) (int64, error) {
	const query = `INSERT INTO runs (started_at, status) VALUES (?, ?)`

	result, insertError := journal.database.ExecContext(executionContext, query, journal.now(), string(RunStatusRunning))
	if insertError != nil {
		return 0, fmt.Errorf(startRunErrorTemplateConstant, insertError)
	}

	runID, identifierError := result.LastInsertId()
	if identifierError != nil {
		return 0, fmt.Errorf(startRunErrorTemplateConstant, identifierError)
	}
	return runID, nil
}

// RecordOutcome appends a unit outcome to the run.
func (journal *Journal) RecordOutcome(executionContext context.Context, runID int64, outcome Outcome) error {
	const query = `INSERT INTO outcomes (run_id, recorded_at, kind, status, safe_name, account_id, account_name, vault_id, item_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, insertError := journal.database.ExecContext(
		executionContext,
		query,
		runID,
		journal.now(),
		outcome.Kind,
		outcome.Status,
		outcome.SafeName,
		outcome.AccountID,
		outcome.AccountName,
		outcome.VaultID,
		outcome.ItemID,
		outcome.Reason,
	)
	if insertError != nil {
		return fmt.Errorf(recordOutcomeErrorTemplateConstant, runID, insertError)
	}
	return nil
}

// FinishRun stores the final status and tally of the run.
func (journal *Journal) FinishRun(executionContext context.Context, runID int64, status RunStatus, tally Tally) error {
	const query = `UPDATE runs SET finished_at = ?, status = ?, safes_discovered = ?, vaults_created = ?, vaults_skipped = ?,
		accounts_discovered = ?, items_created = ?, items_skipped = ? WHERE id = ?`

	result, updateError := journal.database.ExecContext(
		executionContext,
		query,
		journal.now(),
		string(status),
		tally.SafesDiscovered,
		tally.VaultsCreated,
		tally.VaultsSkipped,
		tally.AccountsDiscovered,
		tally.ItemsCreated,
		tally.ItemsSkipped,
		runID,
	)
	if updateError != nil {
		return fmt.Errorf(finishRunErrorTemplateConstant, runID, updateError)
	}

	affectedRows, rowsError := result.RowsAffected()
	if rowsError != nil {
		return fmt.Errorf(checkRowsAffectedErrorTemplateConstant, rowsError)
	}
	if affectedRows == 0 {
		return fmt.Errorf(finishRunErrorTemplateConstant, runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (journal *Journal) ListRuns(executionContext context.Context, limit int) ([]Run, error) {
	const query = `SELECT id, started_at, finished_at, status, safes_discovered, vaults_created, vaults_skipped,
		accounts_discovered, items_created, items_skipped FROM runs ORDER BY id DESC LIMIT ?`

	rows, queryError := journal.database.QueryContext(executionContext, query, limit)
	if queryError != nil {
		return nil, fmt.Errorf(listRunsErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt string
			status     string
		)
		if scanError := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&status,
			&run.Tally.SafesDiscovered,
			&run.Tally.VaultsCreated,
			&run.Tally.VaultsSkipped,
			&run.Tally.AccountsDiscovered,
			&run.Tally.ItemsCreated,
			&run.Tally.ItemsSkipped,
		); scanError != nil {
			return nil, fmt.Errorf(listRunsErrorTemplateConstant, scanError)
		}

		parsedStartedAt, startedError := parseTimestamp(startedAt)
		if startedError != nil {
			return nil, fmt.Errorf(listRunsErrorTemplateConstant, startedError)
		}
		parsedFinishedAt, finishedError := parseTimestamp(finishedAt)
		if finishedError != nil {
			return nil, fmt.Errorf(listRunsErrorTemplateConstant, finishedError)
		}

		run.StartedAt = parsedStartedAt
		run.FinishedAt = parsedFinishedAt
		run.Status = RunStatus(status)
		runs = append(runs, run)
	}
	if iterationError := rows.Err(); iterationError != nil {
		return nil, fmt.Errorf(listRunsErrorTemplateConstant, iterationError)
	}

	return runs, nil
}

// ListOutcomes returns the outcomes of a run in the order they were recorded.
func (journal *Journal) ListOutcomes(executionContext context.Context, runID int64) ([]Outcome, error) {
	const query = `SELECT recorded_at, kind, status, safe_name, account_id, account_name, vault_id, item_id, reason
		FROM outcomes WHERE run_id = ? ORDER BY id ASC`

	rows, queryError := journal.database.QueryContext(executionContext, query, runID)
	if queryError != nil {
		return nil, fmt.Errorf(listOutcomesErrorTemplateConstant, runID, queryError)
	}
	defer rows.Close()

	outcomes := []Outcome{}
	for rows.Next() {
		var (
			outcome    Outcome
			recordedAt string
		)
		if scanError := rows.Scan(
			&recordedAt,
			&outcome.Kind,
			&outcome.Status,
			&outcome.SafeName,
			&outcome.AccountID,
			&outcome.AccountName,
			&outcome.VaultID,
			&outcome.ItemID,
			&outcome.Reason,
		); scanError != nil {
			return nil, fmt.Errorf(listOutcomesErrorTemplateConstant, runID, scanError)
		}

		parsedRecordedAt, parseError := parseTimestamp(recordedAt)
		if parseError != nil {
			return nil, fmt.Errorf(listOutcomesErrorTemplateConstant, runID, parseError)
		}
		outcome.RecordedAt = parsedRecordedAt
		outcomes = append(outcomes, outcome)
	}
	if iterationError := rows.Err(); iterationError != nil {
		return nil, fmt.Errorf(listOutcomesErrorTemplateConstant, runID, iterationError)
	}

	return outcomes, nil
}

func (journal *Journal) now() string {
	return journal.clock().UTC().Format(timestampLayoutConstant)
}

func parseTimestamp(value string) (time.Time, error) {
	if len(value) == 0 {
		return time.Time{}, nil
	}
	parsed, parseError := time.Parse(timestampLayoutConstant, value)
	if parseError != nil {
		return time.Time{}, fmt.Errorf(parseTimestampErrorTemplateConstant, value, parseError)
	}
	return parsed, nil
}
