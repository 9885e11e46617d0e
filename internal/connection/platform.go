package connection

import "strings"

// Platform keys used by app configs.
const (
	IOS       = "ios"
	Android   = "android"
	Windows   = "windows"
	MacOS     = "macos"
	Linux     = "linux"
	AndroidTV = "androidTV"
	AppleTV   = "appleTV"
)

// PlatformOrder is the display order of platforms.
var PlatformOrder = []string{IOS, Android, Windows, MacOS, Linux, AndroidTV, AppleTV}

var platformNames = map[string]string{
	IOS:       "iOS",
	Android:   "Android",
	Windows:   "Windows",
	MacOS:     "macOS",
	Linux:     "Linux",
	AndroidTV: "Android TV",
	AppleTV:   "Apple TV",
}

// DetectPlatform maps a User-Agent header to a platform key.
// It returns "" when nothing matches.
func DetectPlatform(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return ""
	case containsAny(ua, "iphone", "ipad", "ipod"):
		return IOS
	case strings.Contains(ua, "android"):
		if containsAny(ua, "tv", "television") {
			return AndroidTV
		}
		return Android
	case containsAny(ua, "macintosh", "mac os x"):
		return MacOS
	case strings.Contains(ua, "windows"):
		return Windows
	case strings.Contains(ua, "linux"):
		return Linux
	}
	return ""
}

// IsMobile reports whether the platform opens custom URL schemes natively.
func IsMobile(platform string) bool {
	return platform == IOS || platform == Android
}

// AvailablePlatforms lists the platforms that have at least one app, in
// PlatformOrder, with detected moved to the front when it is available.
func AvailablePlatforms(cfg *AppConfig, detected string) []string {
	if cfg == nil {
		return nil
	}
	var out []string
	found := false
	for _, key := range PlatformOrder {
		if cfg.Platforms[key].AppCount() == 0 {
			continue
		}
		if key == detected {
			found = true
			continue
		}
		out = append(out, key)
	}
	if found {
		out = append([]string{detected}, out...)
	}
	return out
}

// PlatformName returns the display name for a platform key.
func PlatformName(cfg *AppConfig, key, lang string) string {
	if cfg != nil {
		if name := cfg.PlatformNames[key].Resolve(lang); name != "" {
			return name
		}
	}
	if name, ok := platformNames[key]; ok {
		return name
	}
	return key
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
