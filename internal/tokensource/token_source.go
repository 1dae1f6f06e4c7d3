package tokensource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	sourceSeparatorConstant                    = ":"
	environmentSourceTypeValueConstant         = "env"
	fileSourceTypeValueConstant                = "file"
	sourceMissingErrorMessageConstant          = "secret source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "secret file path must be provided"
	environmentValueMissingTemplateConstant    = "environment variable %s is not set"
	fileReadErrorTemplateConstant              = "unable to read secret file %s: %w"
	fileValueEmptyErrorTemplateConstant        = "secret file %s is empty"
	unsupportedSourceTemplateConstant          = "unsupported secret source type %q"
)

// SourceType enumerates the supported secret retrieval mechanisms.
type SourceType string

// Source type enumerations.
const (
	SourceTypeEnvironment SourceType = SourceType(environmentSourceTypeValueConstant)
	SourceTypeFile        SourceType = SourceType(fileSourceTypeValueConstant)
)

// Source specifies how to locate a secret value.
type Source struct {
	Type      SourceType
	Reference string
}

// Resolver retrieves secret values from configured sources.
type Resolver interface {
	Resolve(resolutionContext context.Context, source Source) (string, error)
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

var errSourceMissing = errors.New(sourceMissingErrorMessageConstant)

// NewResolver creates a resolver, defaulting to the process environment and filesystem.
func NewResolver(environmentLookup EnvironmentLookup, fileReader FileReader) Resolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if fileReader == nil {
		fileReader = os.ReadFile
	}
	return &resolver{environmentLookup: environmentLookup, fileReader: fileReader}
}

// IsSourceMissing reports whether err signals an empty source declaration.
func IsSourceMissing(err error) bool {
	return errors.Is(err, errSourceMissing)
}

// ParseSource interprets textual secret source declarations.
func ParseSource(sourceValue string) (Source, error) {
	trimmedValue := strings.TrimSpace(sourceValue)
	if len(trimmedValue) == 0 {
		return Source{}, errSourceMissing
	}

	components := strings.SplitN(trimmedValue, sourceSeparatorConstant, 2)
	if len(components) == 1 {
		return Source{Type: SourceTypeEnvironment, Reference: trimmedValue}, nil
	}

	sourceType := strings.ToLower(strings.TrimSpace(components[0]))
	reference := strings.TrimSpace(components[1])

	switch SourceType(sourceType) {
	case SourceTypeEnvironment:
		if len(reference) == 0 {
			return Source{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeEnvironment, Reference: reference}, nil
	case SourceTypeFile:
		if len(reference) == 0 {
			return Source{}, errors.New(filePathMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeFile, Reference: reference}, nil
	default:
		return Source{}, fmt.Errorf(unsupportedSourceTemplateConstant, sourceType)
	}
}

// ResolveDeclaration parses and resolves a declaration in one step.
func ResolveDeclaration(resolutionContext context.Context, secretResolver Resolver, declaration string) (string, error) {
	source, parseError := ParseSource(declaration)
	if parseError != nil {
		return "", parseError
	}
	return secretResolver.Resolve(resolutionContext, source)
}

type resolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
}

func (secretResolver *resolver) Resolve(_ context.Context, source Source) (string, error) {
	switch source.Type {
	case SourceTypeEnvironment:
		value, found := secretResolver.environmentLookup(source.Reference)
		trimmedValue := strings.TrimSpace(value)
		if !found || len(trimmedValue) == 0 {
			return "", fmt.Errorf(environmentValueMissingTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	case SourceTypeFile:
		contents, readError := secretResolver.fileReader(source.Reference)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, source.Reference, readError)
		}
		trimmedValue := strings.TrimSpace(string(contents))
		if len(trimmedValue) == 0 {
			return "", fmt.Errorf(fileValueEmptyErrorTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	default:
		return "", fmt.Errorf(unsupportedSourceTemplateConstant, source.Type)
	}
}
