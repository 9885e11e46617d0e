package connection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocalizedText maps a language code to a translation.
type LocalizedText map[string]string

// Resolve picks lang, then en, then ru, then the first non-empty value in
// key order.
func (t LocalizedText) Resolve(lang string) string {
	if len(t) == 0 {
		return ""
	}
	for _, k := range []string{lang, "en", "ru"} {
		if v := t[k]; k != "" && v != "" {
			return v
		}
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// StepButton is a link shown under a classic installation step.
type StepButton struct {
	ButtonLink string        `json:"buttonLink" yaml:"buttonLink"`
	ButtonText LocalizedText `json:"buttonText" yaml:"buttonText"`
}

type Step struct {
	Description LocalizedText `json:"description" yaml:"description"`
	Buttons     []StepButton  `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// App is a classic per-platform app entry with three fixed steps.
type App struct {
	ID                  string `json:"id,omitempty" yaml:"id,omitempty"`
	Name                string `json:"name" yaml:"name"`
	IsFeatured          bool   `json:"isFeatured" yaml:"isFeatured"`
	DeepLink            string `json:"deepLink,omitempty" yaml:"deepLink,omitempty"`
	InstallationStep    *Step  `json:"installationStep,omitempty" yaml:"installationStep,omitempty"`
	AddSubscriptionStep *Step  `json:"addSubscriptionStep,omitempty" yaml:"addSubscriptionStep,omitempty"`
	ConnectAndUseStep   *Step  `json:"connectAndUseStep,omitempty" yaml:"connectAndUseStep,omitempty"`
}

// Button types of block-based apps. Any other type is an external link.
const (
	ButtonSubscriptionLink = "subscriptionLink"
	ButtonCopy             = "copyButton"
	ButtonExternal         = "external"
)

type Button struct {
	Type        string        `json:"type" yaml:"type"`
	Text        LocalizedText `json:"text,omitempty" yaml:"text,omitempty"`
	URL         string        `json:"url,omitempty" yaml:"url,omitempty"`
	Link        string        `json:"link,omitempty" yaml:"link,omitempty"`
	ResolvedURL string        `json:"resolvedUrl,omitempty" yaml:"resolvedUrl,omitempty"`
	SvgIconKey  string        `json:"svgIconKey,omitempty" yaml:"svgIconKey,omitempty"`
}

type Block struct {
	Title        LocalizedText `json:"title,omitempty" yaml:"title,omitempty"`
	Description  LocalizedText `json:"description,omitempty" yaml:"description,omitempty"`
	SvgIconKey   string        `json:"svgIconKey,omitempty" yaml:"svgIconKey,omitempty"`
	SvgIconColor string        `json:"svgIconColor,omitempty" yaml:"svgIconColor,omitempty"`
	Buttons      []Button      `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// BlockApp is an app described by a free list of blocks.
type BlockApp struct {
	Name     string  `json:"name" yaml:"name"`
	Featured bool    `json:"featured" yaml:"featured"`
	DeepLink string  `json:"deepLink,omitempty" yaml:"deepLink,omitempty"`
	Blocks   []Block `json:"blocks" yaml:"blocks"`
}

// PlatformData is either a list of classic apps or a {"apps": [...]}
// document of block apps. The form is chosen by the shape of the input.
type PlatformData struct {
	Classic []App
	Blocks  []BlockApp
	block   bool
}

// IsBlocks reports whether the data was decoded from the block form.
func (p PlatformData) IsBlocks() bool { return p.block }

func (p PlatformData) AppCount() int {
	if p.block {
		return len(p.Blocks)
	}
	return len(p.Classic)
}

type blockDoc struct {
	Apps []BlockApp `json:"apps" yaml:"apps"`
}

func (p *PlatformData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = PlatformData{}
		return nil
	case data[0] == '[':
		var apps []App
		if err := json.Unmarshal(data, &apps); err != nil {
			return err
		}
		*p = PlatformData{Classic: apps}
		return nil
	case data[0] == '{':
		var doc blockDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*p = PlatformData{Blocks: doc.Apps, block: true}
		return nil
	}
	return fmt.Errorf("platform data must be an array or an object")
}

func (p PlatformData) MarshalJSON() ([]byte, error) {
	if p.block {
		return json.Marshal(blockDoc{Apps: p.Blocks})
	}
	if p.Classic == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Classic)
}

func (p *PlatformData) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var apps []App
		if err := node.Decode(&apps); err != nil {
			return err
		}
		*p = PlatformData{Classic: apps}
		return nil
	case yaml.MappingNode:
		var doc blockDoc
		if err := node.Decode(&doc); err != nil {
			return err
		}
		*p = PlatformData{Blocks: doc.Apps, block: true}
		return nil
	}
	return fmt.Errorf("line %d: platform data must be a list or a mapping", node.Line)
}

// SvgEntry is an icon of the SVG library, given either as a bare string or
// as {svgString: ...}.
type SvgEntry string

func (s *SvgEntry) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*s = SvgEntry(raw)
		return nil
	}
	var obj struct {
		SvgString string `json:"svgString"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = SvgEntry(obj.SvgString)
	return nil
}

func (s *SvgEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = SvgEntry(node.Value)
		return nil
	}
	var obj struct {
		SvgString string `yaml:"svgString"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	*s = SvgEntry(obj.SvgString)
	return nil
}

type BaseSettings struct {
	IsShowTutorialButton bool   `json:"isShowTutorialButton" yaml:"isShowTutorialButton"`
	TutorialURL          string `json:"tutorialUrl,omitempty" yaml:"tutorialUrl,omitempty"`
}

// AppConfig is the document describing which VPN apps to offer per
// platform and how to connect them.
type AppConfig struct {
	HasSubscription  bool                     `json:"hasSubscription" yaml:"hasSubscription"`
	SubscriptionURL  string                   `json:"subscriptionUrl,omitempty" yaml:"subscriptionUrl,omitempty"`
	HideLink         bool                     `json:"hideLink,omitempty" yaml:"hideLink,omitempty"`
	IsRemnawave      bool                     `json:"isRemnawave" yaml:"isRemnawave"`
	Platforms        map[string]PlatformData  `json:"platforms" yaml:"platforms"`
	PlatformNames    map[string]LocalizedText `json:"platformNames,omitempty" yaml:"platformNames,omitempty"`
	BaseTranslations map[string]LocalizedText `json:"baseTranslations,omitempty" yaml:"baseTranslations,omitempty"`
	BaseSettings     BaseSettings             `json:"baseSettings" yaml:"baseSettings"`
	SvgLibrary       map[string]SvgEntry      `json:"svgLibrary,omitempty" yaml:"svgLibrary,omitempty"`
}

// ParseAppConfig decodes an app config. YAML is used when format is
// "yaml" or "yml", JSON otherwise.
func ParseAppConfig(data []byte, format string) (*AppConfig, error) {
	var cfg AppConfig
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse app config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse app config: %w", err)
		}
	}
	return &cfg, nil
}

// LoadAppConfig reads an app config file, choosing the decoder by extension.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app config: %w", err)
	}
	return ParseAppConfig(data, filepath.Ext(path))
}
