package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/scanner"
	"github.com/moderndownloader/bridge/internal/transport"
)

var sendCmd = &cobra.Command{
	Use:   "send [url]",
	Short: "Hand a download to the running bridge",
	Long: `send posts a download intent to the running bridge, which forwards it to the
desktop app with the browser cookies for the page it was found on.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")
		page, _ := cmd.Flags().GetString("page")
		quality, _ := cmd.Flags().GetString("quality")
		audio, _ := cmd.Flags().GetBool("audio")

		var target string
		if len(args) > 0 {
			target = args[0]
		} else if fromClipboard {
			text, err := clipboard.ReadAll()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading clipboard: %v\n", err)
				os.Exit(1)
			}
			target = text
		}

		intent, err := buildIntent(target, page, quality, audio)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		svc, err := connectService()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = svc.Shutdown() }()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := svc.SendIntent(ctx, intent)
		if err != nil {
			if errors.Is(err, transport.ErrNotConnected) {
				fmt.Fprintln(os.Stderr, "The desktop app is not connected. Start it and try again, or use 'mdbridge open'.")
			} else {
				fmt.Fprintf(os.Stderr, "Error sending download: %v\n", err)
			}
			os.Exit(1)
		}
		fmt.Printf("Sent %s [%s]\n", intent.MediaURL, shortID(id))
	},
}

func init() {
	sendCmd.Flags().String("page", "", "Page the media was found on (cookies and referrer come from it; default: the url)")
	sendCmd.Flags().StringP("quality", "q", "best", "Quality: best, 1080p, 720p or audio")
	sendCmd.Flags().Bool("audio", false, "Audio only (same as --quality audio)")
	sendCmd.Flags().Bool("clipboard", false, "Read the url from the clipboard")
	rootCmd.AddCommand(sendCmd)
}

// buildIntent validates the send arguments.
func buildIntent(target, page, quality string, audio bool) (types.DownloadIntent, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.DownloadIntent{}, errors.New("no url given")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return types.DownloadIntent{}, fmt.Errorf("not a web url: %q", target)
	}
	q, err := scanner.ParseQuality(quality)
	if err != nil {
		return types.DownloadIntent{}, err
	}
	if audio {
		q = scanner.QualityAudio
	}
	if page = strings.TrimSpace(page); page == "" {
		page = target
	}
	return types.DownloadIntent{MediaURL: target, PageURL: page, Options: q.Options()}, nil
}
