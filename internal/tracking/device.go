package tracking

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"

	DefaultSource = "direct"
)

var (
	tabletRE  = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)
	androidRE = regexp.MustCompile(`(?i)android`)
	mobiRE    = regexp.MustCompile(`(?i)mobi`)
	mobileRE  = regexp.MustCompile(`(?i)mobile|ip(hone|od)|android|blackberry|iemobile|kindle|netfront|silk-accelerated|(hpw|web)os|fennec|minimo|opera m(obi|ini)|blazer|dolfin|dolphin|skyfire|zune`)
)

// ClassifyDevice buckets a user agent into tablet, mobile or desktop.
// Android without "mobi" is a tablet.
func ClassifyDevice(userAgent string) string {
	if tabletRE.MatchString(userAgent) {
		return DeviceTablet
	}
	if androidRE.MatchString(userAgent) && !mobiRE.MatchString(userAgent) {
		return DeviceTablet
	}
	if mobileRE.MatchString(userAgent) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// ClassifySource reads utm_source, then source, from the landing query.
func ClassifySource(q url.Values) string {
	for _, key := range []string{"utm_source", "source"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return DefaultSource
}
