package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", IOS},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", IOS},
		{"Mozilla/5.0 (Linux; Android 13; Pixel 7)", Android},
		{"Mozilla/5.0 (Linux; Android 11; BRAVIA 4K GB ATV3 Build) AndroidTV", AndroidTV},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", MacOS},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", Windows},
		{"Mozilla/5.0 (X11; Linux x86_64)", Linux},
		{"curl/8.0", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectPlatform(tt.ua), tt.ua)
	}
}

func TestAvailablePlatforms(t *testing.T) {
	cfg, err := ParseAppConfig([]byte(classicJSON), "json")
	require.NoError(t, err)

	assert.Equal(t, []string{IOS, Windows}, AvailablePlatforms(cfg, ""))
	assert.Equal(t, []string{Windows, IOS}, AvailablePlatforms(cfg, Windows))
	// linux has no apps, so it is never promoted
	assert.Equal(t, []string{IOS, Windows}, AvailablePlatforms(cfg, Linux))
	assert.Nil(t, AvailablePlatforms(nil, IOS))
}

func TestPlatformName(t *testing.T) {
	cfg, err := ParseAppConfig([]byte(classicJSON), "json")
	require.NoError(t, err)

	assert.Equal(t, "Windows PC", PlatformName(cfg, Windows, "ru"))
	assert.Equal(t, "iOS", PlatformName(cfg, IOS, "en"))
	assert.Equal(t, "Android TV", PlatformName(nil, AndroidTV, "en"))
	assert.Equal(t, "tizen", PlatformName(cfg, "tizen", "en"))
}
