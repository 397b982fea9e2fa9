package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/router"
	"github.com/moderndownloader/bridge/internal/scanner"
	"github.com/moderndownloader/bridge/internal/utils"
)

// maxPageSize bounds fetched pages.
const maxPageSize = 8 << 20

var scanCmd = &cobra.Command{
	Use:   "scan <page-url|file>",
	Short: "Find downloadable media on a page",
	Long: `scan runs the media scanner over a page and lists every element that would get
a download control. --pick N sends the Nth one to the running bridge.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pageFlag, _ := cmd.Flags().GetString("page")
		pick, _ := cmd.Flags().GetInt("pick")
		quality, _ := cmd.Flags().GetString("quality")
		watch, _ := cmd.Flags().GetBool("watch")

		q, err := scanner.ParseQuality(quality)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		page, err := loadPage(args[0], pageFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if watch {
			if err := watchPage(args[0], page); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		var picked []types.DownloadIntent
		sc := &scanner.Scanner{Sink: scanner.SinkFunc(func(intent types.DownloadIntent) {
			picked = append(picked, intent)
		})}
		found := sc.Scan(page)
		if len(found) == 0 {
			fmt.Println("No downloadable media found.")
			return
		}
		for i, a := range found {
			fmt.Println(describeAffordance(i+1, a))
		}

		if pick == 0 {
			return
		}
		if pick < 1 || pick > len(found) {
			fmt.Fprintf(os.Stderr, "Error: --pick must be between 1 and %d\n", len(found))
			os.Exit(1)
		}
		found[pick-1].Click(q)

		svc, err := connectService()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = svc.Shutdown() }()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, intent := range picked {
			id, err := svc.SendIntent(ctx, intent)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error sending download: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Sent %s [%s]\n", intent.MediaURL, shortID(id))
		}
	},
}

func init() {
	scanCmd.Flags().String("page", "", "Page URL of a local file (for relative links and cookies)")
	scanCmd.Flags().Int("pick", 0, "Send the Nth affordance to the running bridge")
	scanCmd.Flags().StringP("quality", "q", "best", "Quality for --pick: best, 1080p, 720p or audio")
	scanCmd.Flags().Bool("watch", false, "Keep rescanning a local file as it changes")
	rootCmd.AddCommand(scanCmd)
}

func describeAffordance(n int, a *scanner.Affordance) string {
	line := fmt.Sprintf("[%d] %-5s %s", n, a.Kind, a.TargetURL)
	if a.AudioDefault {
		line += " (audio)"
	}
	return line
}

func isWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// loadPage fetches a web page or reads a local file.
func loadPage(source, pageURL string) (*scanner.Page, error) {
	if isWebURL(source) {
		if pageURL == "" {
			pageURL = source
		}
		return fetchPage(source, pageURL)
	}
	if pageURL == "" {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, err
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return scanner.ParsePage(pageURL, f)
}

func fetchPage(source, pageURL string) (*scanner.Page, error) {
	req, err := http.NewRequest(http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	ua := router.DefaultUserAgent()
	if settings, err := config.LoadSettings(); err == nil && settings.Bridge.UserAgent != "" {
		ua = settings.Bridge.UserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", source, resp.Status)
	}
	return scanner.ParsePage(pageURL, io.LimitReader(resp.Body, maxPageSize))
}

// watchPage keeps scanning a local file, re-parsing it whenever it is
// written, and prints each newly found affordance.
func watchPage(path string, page *scanner.Page) error {
	if isWebURL(path) {
		return fmt.Errorf("--watch needs a local file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	// Editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mutations := make(chan *html.Node)
	go func() {
		defer close(mutations)
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				doc, err := parseFile(path)
				if err != nil {
					utils.Debug("Scan: reparse %s: %v", path, err)
					continue
				}
				select {
				case mutations <- doc:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				utils.Debug("Scan: watcher: %v", err)
			}
		}
	}()

	interval := config.DefaultSettings().Browser.ScanInterval
	if settings, err := config.LoadSettings(); err == nil && settings.Browser.ScanInterval > 0 {
		interval = settings.Browser.ScanInterval
	}

	count := 0
	injector := &scanner.Injector{
		Scanner: &scanner.Scanner{},
		OnDecorate: func(found []*scanner.Affordance) {
			for _, a := range found {
				count++
				fmt.Println(describeAffordance(count, a))
			}
		},
	}
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", path)
	if err := injector.Run(ctx, page, interval, mutations); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func parseFile(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return html.Parse(f)
}
