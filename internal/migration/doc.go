// Package migration copies CyberArk safes and accounts into 1Password vaults and Login items.
//
// A run authenticates once against the source vault, then walks every safe in listing order,
// creating one destination vault per safe and one Login item per account. Failures below the
// session level skip the affected unit and the run continues; every unit produces a typed
// outcome that is tallied into the returned Summary.
package migration
