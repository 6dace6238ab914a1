package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sorobuild/rpc-gateway/internal/keycodec"
)

var rootCmd = &cobra.Command{
	Use:   "rpc-gateway",
	Short: "Multi-tenant gateway for Stellar RPC and Horizon",
	Long: `rpc-gateway authenticates developer accounts, manages projects and
their API keys, meters usage via credits, and proxies requests to the
Stellar RPC and Horizon APIs.`,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new base64 encryption key",
	Long:  `Generate a random 32-byte AES key, base64-encoded, suitable for ENCRYPTION_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := keycodec.GenerateKeyBase64()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
