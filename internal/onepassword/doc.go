// Package onepassword drives the 1Password CLI to create vaults and login items.
package onepassword
