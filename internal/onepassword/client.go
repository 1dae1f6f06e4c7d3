package onepassword

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/temirov/ark2op/internal/execshell"
)

const (
	signInSubcommandConstant         = "signin"
	vaultSubcommandConstant          = "vault"
	itemSubcommandConstant           = "item"
	createSubcommandConstant         = "create"
	accountFlagConstant              = "--account"
	rawFlagConstant                  = "--raw"
	formatFlagConstant               = "--format"
	formatJSONConstant               = "json"
	vaultFlagConstant                = "--vault"
	sessionFlagConstant              = "--session"
	endOfFlagsConstant               = "--"
	loginCategoryConstant            = "Login"
	usernameFieldIdentifierConstant  = "username"
	passwordFieldIdentifierConstant  = "password"
	addressFieldIdentifierConstant   = "address"
	platformFieldIdentifierConstant  = "platformId"
	stringFieldTypeConstant          = "STRING"
	concealedFieldTypeConstant       = "CONCEALED"
	usernamePurposeConstant          = "USERNAME"
	passwordPurposeConstant          = "PASSWORD"
	notesPurposeConstant             = "NOTES"
	accountFieldNameConstant         = "account"
	vaultNameFieldNameConstant       = "vault_name"
	vaultIDFieldNameConstant         = "vault_id"
	itemTitleFieldNameConstant       = "title"
	requiredValueMessageConstant     = "value required"
	signInOperationNameConstant      = OperationName("SignIn")
	createVaultOperationNameConstant = OperationName("CreateVault")
	createItemOperationNameConstant  = OperationName("CreateItem")
	itemPayloadArgumentIndexConstant = 4
)

// VaultID identifies a vault created in 1Password.
type VaultID string

// ItemID identifies an item created in 1Password.
type ItemID string

// Configuration describes how the CLI is invoked.
type Configuration struct {
	Executable          string
	Account             string
	ServiceAccountToken string
	ReuseSession        bool
}

// LoginItem is the content of a Login item migrated from an account.
type LoginItem struct {
	Title      string
	Username   string
	Password   string
	Address    string
	PlatformID string
}

// CommandExecutor is the minimal interface required from execshell.ShellExecutor.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Client coordinates 1Password CLI invocations through execshell.
type Client struct {
	executor      CommandExecutor
	configuration Configuration
	commandName   execshell.CommandName
	cachedSession string
}

type itemField struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

type itemPayload struct {
	Title    string      `json:"title"`
	Category string      `json:"category"`
	Fields   []itemField `json:"fields"`
}

type identifierResponse struct {
	ID string `json:"id"`
}

// NewClient constructs a 1Password CLI client.
func NewClient(executor CommandExecutor, configuration Configuration) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if len(strings.TrimSpace(configuration.Account)) == 0 {
		return nil, InvalidInputError{FieldName: accountFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandName := execshell.CommandOnePassword
	if trimmedExecutable := strings.TrimSpace(configuration.Executable); len(trimmedExecutable) > 0 {
		commandName = execshell.CommandName(trimmedExecutable)
	}

	return &Client{executor: executor, configuration: configuration, commandName: commandName}, nil
}

// SignIn runs op signin with the service account token on standard input and returns the raw session token.
func (client *Client) SignIn(executionContext context.Context) (string, error) {
	commandDetails := execshell.CommandDetails{
		Arguments:     []string{signInSubcommandConstant, accountFlagConstant, client.configuration.Account, rawFlagConstant},
		StandardInput: []byte(client.configuration.ServiceAccountToken),
	}

	executionResult, executionError := client.executor.Execute(executionContext, execshell.ShellCommand{Name: client.commandName, Details: commandDetails})
	if executionError != nil {
		return "", OperationError{Operation: signInOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// CreateVault creates a vault with the given name and returns its identifier.
func (client *Client) CreateVault(executionContext context.Context, vaultName string) (VaultID, error) {
	if len(strings.TrimSpace(vaultName)) == 0 {
		return "", InvalidInputError{FieldName: vaultNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	sessionArguments, sessionError := client.prepareSession(executionContext, createVaultOperationNameConstant)
	if sessionError != nil {
		return "", sessionError
	}

	commandDetails := execshell.CommandDetails{
		Arguments: []string{vaultSubcommandConstant, createSubcommandConstant, formatFlagConstant, formatJSONConstant},
	}
	appendSessionArguments(&commandDetails, sessionArguments)
	// Safe names may start with a dash; the name goes after the end of flags.
	commandDetails.Arguments = append(commandDetails.Arguments, endOfFlagsConstant, vaultName)

	identifier, runError := client.runForIdentifier(executionContext, createVaultOperationNameConstant, commandDetails)
	if runError != nil {
		return "", runError
	}
	return VaultID(identifier), nil
}

// CreateItem creates a Login item in the vault and returns its identifier.
func (client *Client) CreateItem(executionContext context.Context, vaultID VaultID, item LoginItem) (ItemID, error) {
	if len(strings.TrimSpace(string(vaultID))) == 0 {
		return "", InvalidInputError{FieldName: vaultIDFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(item.Title)) == 0 {
		return "", InvalidInputError{FieldName: itemTitleFieldNameConstant, Message: requiredValueMessageConstant}
	}

	payloadBytes, encodingError := json.Marshal(buildItemPayload(item))
	if encodingError != nil {
		return "", PayloadEncodingError{Operation: createItemOperationNameConstant, Cause: encodingError}
	}

	sessionArguments, sessionError := client.prepareSession(executionContext, createItemOperationNameConstant)
	if sessionError != nil {
		return "", sessionError
	}

	commandDetails := execshell.CommandDetails{
		Arguments: []string{
			itemSubcommandConstant,
			createSubcommandConstant,
			vaultFlagConstant,
			string(vaultID),
			string(payloadBytes),
			formatFlagConstant,
			formatJSONConstant,
		},
		SensitiveArgumentIndexes: []int{itemPayloadArgumentIndexConstant},
	}
	appendSessionArguments(&commandDetails, sessionArguments)

	identifier, runError := client.runForIdentifier(executionContext, createItemOperationNameConstant, commandDetails)
	if runError != nil {
		return "", runError
	}
	return ItemID(identifier), nil
}

// prepareSession signs in before a vault or item call. Without session reuse the token
// is discarded, otherwise the first token is cached and passed with --session.
func (client *Client) prepareSession(executionContext context.Context, operation OperationName) ([]string, error) {
	if client.configuration.ReuseSession && len(client.cachedSession) > 0 {
		return []string{sessionFlagConstant, client.cachedSession}, nil
	}

	sessionToken, signInError := client.SignIn(executionContext)
	if signInError != nil {
		return nil, OperationError{Operation: operation, Cause: signInError}
	}

	if !client.configuration.ReuseSession {
		return nil, nil
	}
	if len(sessionToken) == 0 {
		return nil, ResponseDecodingError{Operation: signInOperationNameConstant, Cause: errEmptySessionToken}
	}
	client.cachedSession = sessionToken
	return []string{sessionFlagConstant, sessionToken}, nil
}

func (client *Client) runForIdentifier(executionContext context.Context, operation OperationName, commandDetails execshell.CommandDetails) (string, error) {
	executionResult, executionError := client.executor.Execute(executionContext, execshell.ShellCommand{Name: client.commandName, Details: commandDetails})
	if executionError != nil {
		return "", OperationError{Operation: operation, Cause: executionError}
	}

	var response identifierResponse
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return "", ResponseDecodingError{Operation: operation, Cause: decodingError}
	}
	trimmedIdentifier := strings.TrimSpace(response.ID)
	if len(trimmedIdentifier) == 0 {
		return "", ResponseDecodingError{Operation: operation, Cause: errMissingIdentifier}
	}
	return trimmedIdentifier, nil
}

func appendSessionArguments(commandDetails *execshell.CommandDetails, sessionArguments []string) {
	if len(sessionArguments) == 0 {
		return
	}
	tokenIndex := len(commandDetails.Arguments) + 1
	commandDetails.Arguments = append(commandDetails.Arguments, sessionArguments...)
	commandDetails.SensitiveArgumentIndexes = append(commandDetails.SensitiveArgumentIndexes, tokenIndex)
}

func buildItemPayload(item LoginItem) itemPayload {
	return itemPayload{
		Title:    item.Title,
		Category: loginCategoryConstant,
		Fields: []itemField{
			{ID: usernameFieldIdentifierConstant, Type: stringFieldTypeConstant, Purpose: usernamePurposeConstant, Label: usernameFieldIdentifierConstant, Value: item.Username},
			{ID: passwordFieldIdentifierConstant, Type: concealedFieldTypeConstant, Purpose: passwordPurposeConstant, Label: passwordFieldIdentifierConstant, Value: item.Password},
			{ID: addressFieldIdentifierConstant, Type: stringFieldTypeConstant, Purpose: notesPurposeConstant, Label: addressFieldIdentifierConstant, Value: item.Address},
			{ID: platformFieldIdentifierConstant, Type: stringFieldTypeConstant, Purpose: notesPurposeConstant, Label: platformFieldIdentifierConstant, Value: item.PlatformID},
		},
	}
}
