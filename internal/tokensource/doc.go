// Package tokensource resolves secrets referenced by configuration.
//
// Declarations take the form env:NAME or file:/path; a bare value is treated
// as an environment variable name. The 1Password service-account token and the
// optional CyberArk service password are both resolved through this package so
// that neither needs to be written into a configuration file.
package tokensource
