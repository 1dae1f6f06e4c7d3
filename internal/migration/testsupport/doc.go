// Package testsupport provides stubs for migration command and service tests.
package testsupport
