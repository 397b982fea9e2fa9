package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/moderndownloader/bridge/internal/config"
	"github.com/moderndownloader/bridge/internal/cookies"
	"github.com/moderndownloader/bridge/internal/store"
	"github.com/moderndownloader/bridge/internal/utils"
)

// cookieSource is where the bridge reads the browser session from.
type cookieSource struct {
	Name    string
	Store   cookies.Store
	Watcher cookies.Watcher
	Page    cookies.ActivePage
}

func openStore() (*store.Store, error) {
	return store.Open(config.GetStorePath())
}

// openCookieSource picks the browser named by the preferredBrowser key.
// Anything that cannot be read falls back to an empty in-memory jar so the
// bridge still runs; downloads then go out without cookies.
func openCookieSource(ctx context.Context, st *store.Store, settings *config.Settings, demo bool) cookieSource {
	memory := func(reason string) cookieSource {
		if reason != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s; forwarding no browser cookies.\n", reason)
		}
		jar := cookies.NewMemory()
		return cookieSource{Name: "memory", Store: jar, Watcher: jar, Page: cookies.StaticPage{}}
	}
	if demo {
		return memory("")
	}

	browser := st.PreferredBrowser(ctx)
	if browser != store.BrowserFirefox {
		utils.Debug("Cookie source: %q has no reader", browser)
		return memory(fmt.Sprintf("reading %s cookies is not supported", browser))
	}

	profile := settings.Browser.FirefoxProfile
	if profile == "" {
		var err error
		profile, err = cookies.FindFirefoxProfile(cookies.FirefoxRoots())
		if err != nil {
			return memory(err.Error())
		}
	}
	if _, err := os.Stat(profile); err != nil {
		return memory(fmt.Sprintf("firefox profile %s: %v", profile, err))
	}
	utils.Debug("Cookie source: firefox profile %s", profile)

	ff := cookies.NewFirefox(profile, nil, settings.Browser.CookiePollInterval)
	return cookieSource{
		Name:    "firefox",
		Store:   ff,
		Watcher: ff,
		Page:    cookies.FirefoxSession{ProfileDir: profile},
	}
}
