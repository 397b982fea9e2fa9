package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/protocol"
)

// Command constants
const (
	OpenCommand    = "open"
	XDGOpenCommand = "xdg-open"
	CmdCommand     = "cmd"
)

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Hand a url to the desktop app through its URI scheme",
	Long: `open launches the desktop app's activation URI for url. It works without the
bridge or a connection, but sends no cookies.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printOnly, _ := cmd.Flags().GetBool("print")

		uri, err := activationURIFor(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if printOnly {
			fmt.Println(uri)
			return
		}
		if err := openURI(uri); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", uri, err)
			os.Exit(1)
		}
	},
}

func init() {
	openCmd.Flags().Bool("print", false, "Print the URI instead of launching it")
	rootCmd.AddCommand(openCmd)
}

func activationURIFor(target string) (string, error) {
	if !protocol.IsActivatable(target) {
		return "", errors.New("browser-internal pages cannot be downloaded")
	}
	scheme := config.DefaultSettings().Bridge.ActivationScheme
	if settings, err := config.LoadSettings(); err == nil && settings.Bridge.ActivationScheme != "" {
		scheme = settings.Bridge.ActivationScheme
	}
	return protocol.ActivationURI(scheme, target), nil
}

// openURI asks the OS to launch uri with its registered handler.
func openURI(uri string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command(OpenCommand, uri)
	case "windows":
		c = exec.Command(CmdCommand, "/c", "start", "", uri)
	default:
		c = exec.Command(XDGOpenCommand, uri)
	}
	return c.Start()
}
