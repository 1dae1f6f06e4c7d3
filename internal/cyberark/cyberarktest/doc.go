// Package cyberarktest provides an in-process PVWA fake for tests.
package cyberarktest
