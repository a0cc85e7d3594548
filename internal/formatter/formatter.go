// package formatter provides display and URL formatting helpers for setlist
// and playlist data
package formatter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/setplaylist/setplaylist/internal/services"
)

// slashToken stands in for "/" inside artist names embedded in URL paths
// (e.g. "AC/DC"), which would otherwise split the path segment.
const slashToken = "--sls--"

// FormatName returns a URL-safe encoding of an artist or playlist name.
func FormatName(name string) string {
	fixed := strings.ReplaceAll(name, "/", slashToken)
	return url.QueryEscape(fixed)
}

// UnformatName decodes a name produced by [FormatName].
func UnformatName(name string) string {
	decoded, err := url.QueryUnescape(name)
	if err != nil {
		decoded = name
	}
	return strings.ReplaceAll(decoded, slashToken, "/")
}

// FormatSetlistDisplay renders a setlist's one-line summary:
// venue, event date, and location.
func FormatSetlistDisplay(setlist services.FMSetlist) string {
	venueName := setlist.Venue.Name
	if venueName == "" {
		venueName = "Venue Unknown"
	}

	city := setlist.Venue.City
	location := joinNonEmpty(", ", city.Name, city.StateCode, city.Country.Code)

	return fmt.Sprintf("%s - %s - %s", venueName, setlist.EventDate, location)
}

// FormatDuration renders a track duration in milliseconds as m:ss.
func FormatDuration(durationMS int) string {
	totalSeconds := durationMS / 1000
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// joinNonEmpty joins the non-empty parts with sep.
func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
