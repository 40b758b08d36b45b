// Package meetinglink finds video-meeting URLs in calendar event fields.
// Extraction is best-effort: anything that is not a recognised meeting URL
// is reported as absent, never as an error.
package meetinglink

import (
	"net/url"
	"strings"

	"mvdan.cc/xurls/v2"
)

// service describes how to recognise one meeting provider's join URL.
type service struct {
	name string
	// hosts are matched against the URL host exactly or as a dot-suffix.
	hosts []string
	// pathPrefixes, when set, restrict matches to these path prefixes.
	pathPrefixes []string
}

// services is checked in order; the first URL in the text that matches any
// of them wins.
var services = []service{
	{name: "Zoom", hosts: []string{"zoom.us", "zoomgov.com"}, pathPrefixes: []string{"/j/", "/my/", "/w/", "/s/"}},
	{name: "Google Meet", hosts: []string{"meet.google.com"}},
	{name: "Microsoft Teams", hosts: []string{"teams.microsoft.com", "teams.live.com"}},
	{name: "Webex", hosts: []string{"webex.com"}},
	{name: "GoToMeeting", hosts: []string{"gotomeeting.com", "gotomeet.me", "meet.goto.com"}},
	{name: "BlueJeans", hosts: []string{"bluejeans.com"}},
	{name: "Whereby", hosts: []string{"whereby.com"}},
	{name: "Slack", hosts: []string{"app.slack.com"}, pathPrefixes: []string{"/huddle/"}},
	{name: "FaceTime", hosts: []string{"facetime.apple.com"}},
	{name: "Skype", hosts: []string{"join.skype.com"}},
	{name: "Discord", hosts: []string{"discord.gg", "discord.com"}},
	{name: "Jitsi", hosts: []string{"meet.jit.si"}},
	{name: "Chime", hosts: []string{"chime.aws"}},
}

var urlPattern = xurls.Strict()

// Extract returns the first meeting URL found in text, or "" when there is
// none.
func Extract(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, candidate := range urlPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:)>]")
		if _, ok := Service(candidate); ok {
			return candidate
		}
	}
	return ""
}

// Service returns the provider name of a meeting URL.
func Service(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, svc := range services {
		if !hostMatches(host, svc.hosts) {
			continue
		}
		if len(svc.pathPrefixes) == 0 || pathMatches(u.Path, svc.pathPrefixes) {
			return svc.name, true
		}
	}
	return "", false
}

// Resolve picks an event's meeting link: the explicit URL field when set,
// then the first meeting URL in notes, then in location.
func Resolve(explicitURL, notes, location string) string {
	if u := strings.TrimSpace(explicitURL); u != "" {
		return u
	}
	if link := Extract(notes); link != "" {
		return link
	}
	return Extract(location)
}

func hostMatches(host string, hosts []string) bool {
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func pathMatches(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
