package router

import (
	"net/http"
	"runtime"

	"github.com/vfaronov/httpheader"
)

const firefoxVersion = "128.0"

// DefaultUserAgent is a desktop Firefox user agent for the host OS, used
// when neither the intent nor the settings supply one.
func DefaultUserAgent() string {
	var platform string
	switch runtime.GOOS {
	case "windows":
		platform = "Windows NT 10.0; Win64; x64; rv:" + firefoxVersion
	case "darwin":
		platform = "Macintosh; Intel Mac OS X 10.15; rv:" + firefoxVersion
	default:
		platform = "X11; Linux x86_64; rv:" + firefoxVersion
	}
	h := http.Header{}
	httpheader.SetUserAgent(h, []httpheader.Product{
		{Name: "Mozilla", Version: "5.0", Comment: platform},
		{Name: "Gecko", Version: "20100101"},
		{Name: "Firefox", Version: firefoxVersion},
	})
	return h.Get("User-Agent")
}

// IsBrowserUserAgent reports whether the request came from a browser
// rather than a CLI or script, judging by its User-Agent products.
func IsBrowserUserAgent(h http.Header) bool {
	products := httpheader.UserAgent(h)
	return len(products) > 0 && products[0].Name == "Mozilla"
}
