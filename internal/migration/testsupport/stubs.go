package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/temirov/ark2op/internal/execshell"
	"github.com/temirov/ark2op/internal/migration"
)

const (
	signInSubcommandConstant       = "signin"
	vaultSubcommandConstant        = "vault"
	itemSubcommandConstant         = "item"
	vaultFlagConstant              = "--vault"
	endOfFlagsConstant             = "--"
	stubSessionTokenConstant       = "stub-session-token"
	vaultIdentifierTemplate        = "vault-%d"
	itemIdentifierTemplate         = "item-%d"
	createdResponseTemplate        = `{"id":%q}`
	rejectedVaultStandardError     = "[ERROR] vault creation rejected"
	rejectedItemStandardError      = "[ERROR] item creation rejected"
	unexpectedCommandErrorTemplate = "unexpected op invocation %v"
)

// CreatedVault is a vault created through the stub CLI.
type CreatedVault struct {
	ID   string
	Name string
}

// CreatedItem is a Login item created through the stub CLI.
type CreatedItem struct {
	ID       string
	VaultID  string
	Title    string
	Category string
	Fields   map[string]ItemField
}

// ItemField is one decoded item field.
type ItemField struct {
	Type    string
	Purpose string
	Label   string
	Value   string
}

// OnePasswordCLIStub simulates the 1Password CLI for signin, vault create and item create.
type OnePasswordCLIStub struct {
	RejectedVaultNames  map[string]bool
	RejectedItemTitles  map[string]bool
	MalformedVaultNames map[string]bool

	mutex            sync.Mutex
	commands         []execshell.ShellCommand
	signInInputs     []string
	vaults           []CreatedVault
	items            []CreatedItem
	identifierSerial int
}

// Execute records the command and simulates its output.
func (stub *OnePasswordCLIStub) Execute(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()

	stub.commands = append(stub.commands, command)
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return execshell.ExecutionResult{}, fmt.Errorf(unexpectedCommandErrorTemplate, arguments)
	}

	switch arguments[0] {
	case signInSubcommandConstant:
		stub.signInInputs = append(stub.signInInputs, string(command.Details.StandardInput))
		return execshell.ExecutionResult{StandardOutput: stubSessionTokenConstant + "\n"}, nil
	case vaultSubcommandConstant:
		vaultName := ""
		for argumentIndex := 0; argumentIndex+1 < len(arguments); argumentIndex++ {
			if arguments[argumentIndex] == endOfFlagsConstant {
				vaultName = arguments[argumentIndex+1]
				break
			}
		}
		if stub.RejectedVaultNames[vaultName] {
			return stub.fail(command, rejectedVaultStandardError)
		}
		if stub.MalformedVaultNames[vaultName] {
			return execshell.ExecutionResult{StandardOutput: "not json"}, nil
		}
		stub.identifierSerial++
		vaultID := fmt.Sprintf(vaultIdentifierTemplate, stub.identifierSerial)
		stub.vaults = append(stub.vaults, CreatedVault{ID: vaultID, Name: vaultName})
		return execshell.ExecutionResult{StandardOutput: fmt.Sprintf(createdResponseTemplate, vaultID)}, nil
	case itemSubcommandConstant:
		return stub.createItem(command)
	}

	return execshell.ExecutionResult{}, fmt.Errorf(unexpectedCommandErrorTemplate, arguments)
}

func (stub *OnePasswordCLIStub) createItem(command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	arguments := command.Details.Arguments
	vaultID := ""
	payload := ""
	for argumentIndex := 2; argumentIndex < len(arguments); argumentIndex++ {
		if arguments[argumentIndex] == vaultFlagConstant && argumentIndex+1 < len(arguments) {
			vaultID = arguments[argumentIndex+1]
			argumentIndex++
			continue
		}
		if strings.HasPrefix(arguments[argumentIndex], "{") {
			payload = arguments[argumentIndex]
		}
	}

	var decoded struct {
		Title    string `json:"title"`
		Category string `json:"category"`
		Fields   []struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			Purpose string `json:"purpose"`
			Label   string `json:"label"`
			Value   string `json:"value"`
		} `json:"fields"`
	}
	if decodingError := json.Unmarshal([]byte(payload), &decoded); decodingError != nil {
		return stub.fail(command, decodingError.Error())
	}
	if stub.RejectedItemTitles[decoded.Title] {
		return stub.fail(command, rejectedItemStandardError)
	}

	fields := make(map[string]ItemField, len(decoded.Fields))
	for _, field := range decoded.Fields {
		fields[field.ID] = ItemField{Type: field.Type, Purpose: field.Purpose, Label: field.Label, Value: field.Value}
	}

	stub.identifierSerial++
	itemID := fmt.Sprintf(itemIdentifierTemplate, stub.identifierSerial)
	stub.items = append(stub.items, CreatedItem{ID: itemID, VaultID: vaultID, Title: decoded.Title, Category: decoded.Category, Fields: fields})
	return execshell.ExecutionResult{StandardOutput: fmt.Sprintf(createdResponseTemplate, itemID)}, nil
}

func (stub *OnePasswordCLIStub) fail(command execshell.ShellCommand, standardError string) (execshell.ExecutionResult, error) {
	result := execshell.ExecutionResult{ExitCode: 1, StandardError: standardError}
	return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: command, Result: result}
}

// Commands returns every recorded invocation.
func (stub *OnePasswordCLIStub) Commands() []execshell.ShellCommand {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]execshell.ShellCommand(nil), stub.commands...)
}

// SignInInputs returns the standard input passed to every signin.
func (stub *OnePasswordCLIStub) SignInInputs() []string {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]string(nil), stub.signInInputs...)
}

// Vaults returns the created vaults in creation order.
func (stub *OnePasswordCLIStub) Vaults() []CreatedVault {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]CreatedVault(nil), stub.vaults...)
}

// Items returns the created items in creation order.
func (stub *OnePasswordCLIStub) Items() []CreatedItem {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return append([]CreatedItem(nil), stub.items...)
}

// ServiceStub returns a configured summary without contacting any vault.
type ServiceStub struct {
	Summary              migration.Summary
	Error                error
	ReceivedDependencies []migration.ServiceDependencies
}

// Provider returns a ServiceProvider that records dependencies and returns the stub.
func (stub *ServiceStub) Provider() migration.ServiceProvider {
	return func(dependencies migration.ServiceDependencies) (migration.MigrationExecutor, error) {
		stub.ReceivedDependencies = append(stub.ReceivedDependencies, dependencies)
		return stub, nil
	}
}

// Execute forwards the configured outcomes to the recorder and returns the configured result.
func (stub *ServiceStub) Execute(executionContext context.Context) (migration.Summary, error) {
	if len(stub.ReceivedDependencies) > 0 {
		recorder := stub.ReceivedDependencies[len(stub.ReceivedDependencies)-1].Recorder
		if recorder != nil {
			for _, outcome := range stub.Summary.Outcomes {
				if recordError := recorder.RecordOutcome(executionContext, outcome); recordError != nil {
					return migration.Summary{}, recordError
				}
			}
		}
	}
	return stub.Summary, stub.Error
}
