package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/ark2op/internal/cyberark"
	"github.com/temirov/ark2op/internal/onepassword"
)

const (
	loggerMissingMessageConstant            = "migration logger not configured"
	sourceVaultMissingMessageConstant       = "source vault client not configured"
	destinationVaultMissingMessageConstant  = "destination vault client not configured"
	authenticationErrorTemplateConstant     = "unable to open a source vault session: %w"
	logMessageAuthenticationFailedConstant  = "Source vault authentication failed"
	logMessageAuthenticatedConstant         = "Source vault session opened"
	logMessageSafeListingFailedConstant     = "Unable to list safes"
	logMessageNoSafesConstant               = "No safes found"
	logMessageSafesDiscoveredConstant       = "Safes discovered"
	logMessageVaultCreatedConstant          = "Vault created"
	logMessageVaultCreationFailedConstant   = "Vault creation failed, skipping safe"
	logMessageAccountListingFailedConstant  = "Unable to list accounts"
	logMessageNoAccountsConstant            = "No accounts found in safe"
	logMessageItemCreatedConstant           = "Item created"
	logMessageSecretRetrievalFailedConstant = "Secret retrieval failed, skipping account"
	logMessageItemCreationFailedConstant    = "Item creation failed, skipping account"
	logMessageRecorderFailedConstant        = "Unable to record outcome"
	logMessageLogoffFailedConstant          = "Source vault logoff failed"
	logMessageMigrationCompletedConstant    = "Migration completed"
	logFieldSafeNameConstant                = "safe"
	logFieldSafeCountConstant               = "safe_count"
	logFieldAccountIDConstant               = "account_id"
	logFieldAccountNameConstant             = "account"
	logFieldVaultIDConstant                 = "vault_id"
	logFieldItemIDConstant                  = "item_id"
	logFieldVaultsCreatedConstant           = "vaults_created"
	logFieldVaultsSkippedConstant           = "vaults_skipped"
	logFieldItemsCreatedConstant            = "items_created"
	logFieldItemsSkippedConstant            = "items_skipped"
	logFieldOutcomeKindConstant             = "kind"
)

var (
	// ErrLoggerNotConfigured indicates the service was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrSourceVaultNotConfigured indicates the service was constructed without a source vault client.
	ErrSourceVaultNotConfigured = errors.New(sourceVaultMissingMessageConstant)
	// ErrDestinationVaultNotConfigured indicates the service was constructed without a destination vault client.
	ErrDestinationVaultNotConfigured = errors.New(destinationVaultMissingMessageConstant)
)

// SourceVault is the subset of the CyberArk client used by the migration.
type SourceVault interface {
	Authenticate(executionContext context.Context) (cyberark.SessionToken, error)
	ListSafes(executionContext context.Context, session cyberark.SessionToken) ([]cyberark.Safe, error)
	ListAccounts(executionContext context.Context, session cyberark.SessionToken, safeName string) ([]cyberark.Account, error)
	FetchAccountSecret(executionContext context.Context, session cyberark.SessionToken, accountID string) (string, error)
	Logoff(executionContext context.Context, session cyberark.SessionToken) error
}

// DestinationVault is the subset of the 1Password client used by the migration.
type DestinationVault interface {
	CreateVault(executionContext context.Context, vaultName string) (onepassword.VaultID, error)
	CreateItem(executionContext context.Context, vaultID onepassword.VaultID, item onepassword.LoginItem) (onepassword.ItemID, error)
}

// Recorder receives every outcome as it is produced.
type Recorder interface {
	RecordOutcome(executionContext context.Context, outcome UnitOutcome) error
}

// MigrationExecutor runs a migration.
type MigrationExecutor interface {
	Execute(executionContext context.Context) (Summary, error)
}

// ServiceDependencies describes required collaborators for migration.
type ServiceDependencies struct {
	Logger      *zap.Logger
	Source      SourceVault
	Destination DestinationVault
	Recorder    Recorder
}

// Service orchestrates the migration.
type Service struct {
	logger      *zap.Logger
	source      SourceVault
	destination DestinationVault
	recorder    Recorder
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Source == nil {
		return nil, ErrSourceVaultNotConfigured
	}
	if dependencies.Destination == nil {
		return nil, ErrDestinationVaultNotConfigured
	}

	return &Service{
		logger:      dependencies.Logger,
		source:      dependencies.Source,
		destination: dependencies.Destination,
		recorder:    dependencies.Recorder,
	}, nil
}

// Execute authenticates, then migrates every safe sequentially. Only session failures and
// context cancellation are returned as errors; every other failure skips its unit.
func (service *Service) Execute(executionContext context.Context) (Summary, error) {
	summary := Summary{}

	session, authenticationError := service.source.Authenticate(executionContext)
	if authenticationError != nil {
		service.logger.Error(logMessageAuthenticationFailedConstant, zap.Error(authenticationError))
		service.record(executionContext, &summary, UnitOutcome{Kind: UnitKindSession, Status: UnitStatusFatal, Reason: authenticationError.Error()})
		return summary, fmt.Errorf(authenticationErrorTemplateConstant, authenticationError)
	}
	service.logger.Debug(logMessageAuthenticatedConstant)
	defer service.logoff(executionContext, session)

	safes, listSafesError := service.source.ListSafes(executionContext, session)
	if listSafesError != nil {
		if isCancellation(listSafesError) {
			return summary, listSafesError
		}
		service.logger.Warn(logMessageSafeListingFailedConstant, zap.Error(listSafesError))
		safes = nil
	}
	summary.SafesDiscovered = len(safes)

	if len(safes) == 0 {
		service.logger.Info(logMessageNoSafesConstant)
	} else {
		service.logger.Info(logMessageSafesDiscoveredConstant, zap.Int(logFieldSafeCountConstant, len(safes)))
	}

	for _, safe := range safes {
		if contextError := executionContext.Err(); contextError != nil {
			return summary, contextError
		}
		if safeError := service.migrateSafe(executionContext, session, safe, &summary); safeError != nil {
			return summary, safeError
		}
	}

	service.logger.Info(
		logMessageMigrationCompletedConstant,
		zap.Int(logFieldVaultsCreatedConstant, summary.VaultsCreated),
		zap.Int(logFieldVaultsSkippedConstant, summary.VaultsSkipped),
		zap.Int(logFieldItemsCreatedConstant, summary.ItemsCreated),
		zap.Int(logFieldItemsSkippedConstant, summary.ItemsSkipped),
	)

	return summary, nil
}

func (service *Service) migrateSafe(executionContext context.Context, session cyberark.SessionToken, safe cyberark.Safe, summary *Summary) error {
	vaultID, vaultError := service.destination.CreateVault(executionContext, safe.Name)
	if vaultError != nil {
		if isCancellation(vaultError) {
			return vaultError
		}
		service.logger.Warn(logMessageVaultCreationFailedConstant, zap.String(logFieldSafeNameConstant, safe.Name), zap.Error(vaultError))
		service.record(executionContext, summary, UnitOutcome{Kind: UnitKindVault, Status: UnitStatusSkipped, SafeName: safe.Name, Reason: vaultError.Error()})
		return nil
	}

	service.logger.Info(logMessageVaultCreatedConstant, zap.String(logFieldSafeNameConstant, safe.Name), zap.String(logFieldVaultIDConstant, string(vaultID)))
	service.record(executionContext, summary, UnitOutcome{Kind: UnitKindVault, Status: UnitStatusSucceeded, SafeName: safe.Name, VaultID: string(vaultID)})

	accounts, listAccountsError := service.source.ListAccounts(executionContext, session, safe.Name)
	if listAccountsError != nil {
		if isCancellation(listAccountsError) {
			return listAccountsError
		}
		service.logger.Warn(logMessageAccountListingFailedConstant, zap.String(logFieldSafeNameConstant, safe.Name), zap.Error(listAccountsError))
		accounts = nil
	}
	summary.AccountsDiscovered += len(accounts)

	if len(accounts) == 0 {
		service.logger.Info(logMessageNoAccountsConstant, zap.String(logFieldSafeNameConstant, safe.Name))
		return nil
	}

	for _, account := range accounts {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		if accountError := service.migrateAccount(executionContext, session, safe, vaultID, account, summary); accountError != nil {
			return accountError
		}
	}
	return nil
}

func (service *Service) migrateAccount(executionContext context.Context, session cyberark.SessionToken, safe cyberark.Safe, vaultID onepassword.VaultID, account cyberark.Account, summary *Summary) error {
	outcome := UnitOutcome{
		Kind:        UnitKindItem,
		SafeName:    safe.Name,
		AccountID:   account.ID,
		AccountName: account.Name,
		VaultID:     string(vaultID),
	}
	logFields := []zap.Field{
		zap.String(logFieldSafeNameConstant, safe.Name),
		zap.String(logFieldAccountIDConstant, account.ID),
		zap.String(logFieldAccountNameConstant, account.Name),
		zap.String(logFieldVaultIDConstant, string(vaultID)),
	}

	secret, secretError := service.source.FetchAccountSecret(executionContext, session, account.ID)
	if secretError != nil {
		if isCancellation(secretError) {
			return secretError
		}
		service.logger.Warn(logMessageSecretRetrievalFailedConstant, append(logFields, zap.Error(secretError))...)
		outcome.Status = UnitStatusSkipped
		outcome.Reason = secretError.Error()
		service.record(executionContext, summary, outcome)
		return nil
	}

	itemID, itemError := service.destination.CreateItem(executionContext, vaultID, onepassword.LoginItem{
		Title:      account.Name,
		Username:   account.UserName,
		Password:   secret,
		Address:    account.Address,
		PlatformID: account.PlatformID,
	})
	if itemError != nil {
		if isCancellation(itemError) {
			return itemError
		}
		service.logger.Warn(logMessageItemCreationFailedConstant, append(logFields, zap.Error(itemError))...)
		outcome.Status = UnitStatusSkipped
		outcome.Reason = itemError.Error()
		service.record(executionContext, summary, outcome)
		return nil
	}

	service.logger.Info(logMessageItemCreatedConstant, append(logFields, zap.String(logFieldItemIDConstant, string(itemID)))...)
	outcome.Status = UnitStatusSucceeded
	outcome.ItemID = string(itemID)
	service.record(executionContext, summary, outcome)
	return nil
}

func (service *Service) record(executionContext context.Context, summary *Summary, outcome UnitOutcome) {
	summary.Add(outcome)
	if service.recorder == nil {
		return
	}
	if recordError := service.recorder.RecordOutcome(executionContext, outcome); recordError != nil {
		service.logger.Warn(logMessageRecorderFailedConstant, zap.String(logFieldOutcomeKindConstant, string(outcome.Kind)), zap.Error(recordError))
	}
}

// logoff ignores cancellation of the run context so a cancelled run still ends its session.
func (service *Service) logoff(executionContext context.Context, session cyberark.SessionToken) {
	if logoffError := service.source.Logoff(context.WithoutCancel(executionContext), session); logoffError != nil {
		service.logger.Debug(logMessageLogoffFailedConstant, zap.Error(logoffError))
	}
}

func isCancellation(candidate error) bool {
	return errors.Is(candidate, context.Canceled) || errors.Is(candidate, context.DeadlineExceeded)
}
