package constants

// File permissions
const (
	SecureDirPerms    = 0o700 // Owner read/write/execute only
	SecureFilePerms   = 0o600 // Owner read/write only
	StandardDirPerms  = 0o755 // Standard directory permissions
	StandardFilePerms = 0o644 // Standard file permissions
)

// Vault-naming prompt defaults (internal/vault's promptui prompt, used
// by cmd/init.go).
const (
	VaultNameLabel     = "Vault name"
	VaultNameDefault   = ""
	VaultNameMinLength = 0
)
