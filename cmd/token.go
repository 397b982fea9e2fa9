package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the auth token the intake expects",
	Run: func(cmd *cobra.Command, args []string) {
		token := ensureAuthToken()
		fmt.Println(token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

// ensureAuthToken returns the stored intake token, creating it on first use.
func ensureAuthToken() string {
	path := filepath.Join(config.GetStateDir(), "token")
	if data, err := os.ReadFile(path); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		utils.Debug("Error creating state dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		utils.Debug("Error writing token: %v", err)
	}
	return token
}
