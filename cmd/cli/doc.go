// Package cli constructs the ark2op command-line interface, wiring the Cobra
// command hierarchy, the embedded default configuration, and structured
// logging. The migrate and history subcommands receive their settings as
// explicit configuration values built from the loaded file and environment.
package cli
