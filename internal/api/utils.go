// Package api provides shared utility functions for CLI and API clients.
package api

import "strings"

// ObfuscateKey obfuscates a sensitive key for display.
func ObfuscateKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
