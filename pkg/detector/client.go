package detector

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/text/language"
)

// Client is what a request reveals about the visitor. Empty strings mean unknown.
type Client struct {
	Browser        string
	BrowserVersion string
	Platform       string
	Language       string
}

// In-app browsers embed a stock engine and report its name, so they are
// matched before the generic parser runs.
var inAppBrowsers = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"WeChat", regexp.MustCompile(`MicroMessenger/([\d.]+)`)},
	{"QQ", regexp.MustCompile(`\bQQ/([\d.]+)`)},
	{"Facebook", regexp.MustCompile(`FBAV/([\d.]+)`)},
	{"Instagram", regexp.MustCompile(`Instagram ([\d.]+)`)},
	{"Line", regexp.MustCompile(`\bLine/([\d.]+)`)},
}

// ParseUserAgent extracts browser, version and platform from a User-Agent header.
func ParseUserAgent(header string) Client {
	if strings.TrimSpace(header) == "" {
		return Client{}
	}

	ua := useragent.New(header)
	client := Client{Platform: ua.Platform()}

	for _, app := range inAppBrowsers {
		if m := app.pattern.FindStringSubmatch(header); m != nil {
			client.Browser = app.name
			client.BrowserVersion = m[1]
			return client
		}
	}

	client.Browser, client.BrowserVersion = ua.Browser()
	return client
}

// PrimaryLanguage returns the highest weighted tag of an Accept-Language header.
func PrimaryLanguage(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}

	if tags[0] == language.Und {
		return ""
	}
	return tags[0].String()
}

// Detect combines the user agent and language of r.
func Detect(r *http.Request) Client {
	client := ParseUserAgent(r.UserAgent())
	client.Language = PrimaryLanguage(r.Header.Get("Accept-Language"))
	return client
}

// ClientIP reads the address set by the trusted proxy in header, taking the
// first entry of a comma separated list, and falls back to the peer address.
func ClientIP(r *http.Request, header string) string {
	if header != "" {
		if value := r.Header.Get(header); value != "" {
			first := strings.TrimSpace(strings.Split(value, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
	}

	return PeerIP(r.RemoteAddr)
}

func PeerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}
