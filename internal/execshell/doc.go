// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging via ShellExecutor, exposes OSCommandRunner for
// default process execution, and defines the abstractions ark2op uses to run
// the 1Password CLI in a testable manner. Standard input is never logged and
// arguments flagged as sensitive are redacted from every log line.
package execshell
