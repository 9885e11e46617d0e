package connection

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizedTextResolve(t *testing.T) {
	text := LocalizedText{"ru": "Привет", "en": "Hello", "de": "Hallo"}
	assert.Equal(t, "Hallo", text.Resolve("de"))
	assert.Equal(t, "Hello", text.Resolve("fr"))
	assert.Equal(t, "Привет", LocalizedText{"ru": "Привет", "uk": "Привіт"}.Resolve("fr"))
	assert.Equal(t, "Ahoj", LocalizedText{"sk": "Ahoj", "cs": ""}.Resolve(""))
	assert.Equal(t, "", LocalizedText(nil).Resolve("en"))
}

func TestParseClassicJSON(t *testing.T) {
	cfg, err := ParseAppConfig([]byte(classicJSON), "json")
	require.NoError(t, err)

	ios := cfg.Platforms[IOS]
	assert.False(t, ios.IsBlocks())
	require.Len(t, ios.Classic, 2)
	assert.True(t, ios.Classic[1].IsFeatured)
	require.NotNil(t, ios.Classic[1].InstallationStep)
	assert.Len(t, ios.Classic[1].InstallationStep.Buttons, 2)
	assert.Equal(t, 0, cfg.Platforms[Linux].AppCount())
}

func TestParseBlocksYAML(t *testing.T) {
	cfg, err := ParseAppConfig([]byte(blocksYAML), ".yaml")
	require.NoError(t, err)

	android := cfg.Platforms[Android]
	assert.True(t, android.IsBlocks())
	require.Len(t, android.Blocks, 2)
	assert.Equal(t, "Happ", android.Blocks[1].Name)
	assert.Len(t, android.Blocks[1].Blocks, 2)
	assert.Equal(t, SvgEntry("<svg>box</svg>"), cfg.SvgLibrary["box"])
	assert.Equal(t, SvgEntry("<svg>star</svg>"), cfg.SvgLibrary["star"])
}

func TestPlatformDataJSONShape(t *testing.T) {
	data := []byte(`{"platforms":{"ios":{"apps":[{"name":"A","blocks":[]}]},"linux":[{"name":"B"}]},"svgLibrary":{"k":{"svgString":"<svg/>"}}}`)
	cfg, err := ParseAppConfig(data, "")
	require.NoError(t, err)
	assert.True(t, cfg.Platforms[IOS].IsBlocks())
	assert.False(t, cfg.Platforms[Linux].IsBlocks())
	assert.Equal(t, SvgEntry("<svg/>"), cfg.SvgLibrary["k"])

	out, err := json.Marshal(cfg.Platforms[IOS])
	require.NoError(t, err)
	assert.JSONEq(t, `{"apps":[{"name":"A","featured":false,"blocks":[]}]}`, string(out))

	_, err = ParseAppConfig([]byte(`{"platforms":{"ios":"nope"}}`), "json")
	assert.Error(t, err)
}

func TestLoadAppConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.yml")
	require.NoError(t, os.WriteFile(path, []byte(blocksYAML), 0o600))

	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsRemnawave)

	_, err = LoadAppConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
