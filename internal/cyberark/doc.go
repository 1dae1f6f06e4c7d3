// Package cyberark is a client for the CyberArk Password Vault Web Access (PVWA) REST API.
//
// It covers the subset needed to migrate credentials out of the vault: logon and
// logoff, the application-scoped lookup that resolves the service account's own
// password, safe enumeration, account enumeration per safe, and retrieval of a
// single account's secret. Session tokens are opaque and are only ever passed
// back as the Authorization header.
package cyberark
