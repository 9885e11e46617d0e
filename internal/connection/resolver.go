package connection

// View formats.
const (
	FormatClassic = "classic"
	FormatBlocks  = "blocks"
)

var blockColors = map[string]string{
	"violet": "#8B5CF6",
	"cyan":   "#06B6D4",
	"teal":   "#14B8A6",
	"red":    "#EF4444",
	"blue":   "#3B82F6",
	"green":  "#22C55E",
	"yellow": "#EAB308",
	"orange": "#F97316",
	"pink":   "#EC4899",
	"indigo": "#6366F1",
	"amber":  "#F59E0B",
}

const defaultBlockColor = "violet"

// DefaultRedirectPath serves the page that hands deep links to the OS.
const DefaultRedirectPath = "/miniapp/redirect.html"

// Step title keys looked up in baseTranslations, by block position.
var stepTitleKeys = []string{"installApp", "addSubscription", "connectAndUse"}

var defaultTranslations = map[string]string{
	"installApp":      "Install the app",
	"addSubscription": "Add subscription",
	"connectAndUse":   "Connect and use",
	"openApp":         "Open app",
	"copyLink":        "Copy link",
}

// Request carries everything about the caller the resolver needs.
type Request struct {
	UserAgent string
	// Platform and App optionally override automatic selection.
	Platform string
	App      string
	Lang     string
	Username string
	// Origin is the scheme://host the redirect page is served from.
	Origin       string
	RedirectPath string
	// SubscriptionURL replaces the one in the config when set.
	SubscriptionURL string
}

type PlatformOption struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type AppOption struct {
	Name     string `json:"name"`
	Featured bool   `json:"featured"`
}

type ResolvedButton struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
	Icon string `json:"icon,omitempty"`
}

type ResolvedBlock struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Color       string           `json:"color"`
	Icon        string           `json:"icon,omitempty"`
	Buttons     []ResolvedButton `json:"buttons"`
}

type ResolvedApp struct {
	Name     string          `json:"name"`
	Featured bool            `json:"featured"`
	Connect  string          `json:"connect_url,omitempty"`
	Blocks   []ResolvedBlock `json:"blocks"`
}

// View is the connection page for one caller with every link resolved.
type View struct {
	HasSubscription bool             `json:"has_subscription"`
	SubscriptionURL string           `json:"subscription_url,omitempty"`
	Format          string           `json:"format"`
	Detected        string           `json:"detected_platform,omitempty"`
	Platform        string           `json:"platform,omitempty"`
	PlatformName    string           `json:"platform_name,omitempty"`
	Platforms       []PlatformOption `json:"platforms"`
	Apps            []AppOption      `json:"apps"`
	App             *ResolvedApp     `json:"app,omitempty"`
	TutorialURL     string           `json:"tutorial_url,omitempty"`
}

// Resolve builds the connection view. The platform is the requested one
// when it has apps, else the detected one, else the first available in
// PlatformOrder. The app is the requested one, else the featured one,
// else the first.
func Resolve(cfg *AppConfig, req Request) *View {
	view := &View{Format: FormatClassic, Platforms: []PlatformOption{}, Apps: []AppOption{}}
	if cfg == nil {
		return view
	}
	if cfg.IsRemnawave {
		view.Format = FormatBlocks
	}
	view.HasSubscription = cfg.HasSubscription
	if !cfg.HasSubscription {
		return view
	}

	r := &resolver{cfg: cfg, req: req}
	sub := cfg.SubscriptionURL
	if req.SubscriptionURL != "" {
		sub = req.SubscriptionURL
	}
	r.vars = TemplateVars{
		SubscriptionURL: ResolveTemplate(sub, TemplateVars{Username: req.Username}),
		Username:        req.Username,
	}
	if !cfg.HideLink {
		view.SubscriptionURL = r.vars.SubscriptionURL
	}
	if cfg.BaseSettings.IsShowTutorialButton && IsValidExternalURL(cfg.BaseSettings.TutorialURL) {
		view.TutorialURL = cfg.BaseSettings.TutorialURL
	}

	r.detected = DetectPlatform(req.UserAgent)
	view.Detected = r.detected
	available := AvailablePlatforms(cfg, r.detected)
	for _, key := range available {
		view.Platforms = append(view.Platforms, PlatformOption{
			Key:   key,
			Name:  PlatformName(cfg, key, req.Lang),
			Count: cfg.Platforms[key].AppCount(),
		})
	}
	if len(available) == 0 {
		return view
	}

	platform := available[0]
	if req.Platform != "" && cfg.Platforms[req.Platform].AppCount() > 0 {
		platform = req.Platform
	}
	view.Platform = platform
	view.PlatformName = PlatformName(cfg, platform, req.Lang)

	data := cfg.Platforms[platform]
	if data.IsBlocks() {
		view.App = r.blockApp(data.Blocks, view)
	} else {
		view.App = r.classicApp(data.Classic, view)
	}
	return view
}

type resolver struct {
	cfg      *AppConfig
	req      Request
	vars     TemplateVars
	detected string
}

func (r *resolver) classicApp(apps []App, view *View) *ResolvedApp {
	idx := 0
	for i, a := range apps {
		view.Apps = append(view.Apps, AppOption{Name: a.Name, Featured: a.IsFeatured})
		if a.IsFeatured && !apps[idx].IsFeatured {
			idx = i
		}
	}
	if i := r.requested(view.Apps); i >= 0 {
		idx = i
	}
	app := apps[idx]

	out := &ResolvedApp{Name: app.Name, Featured: app.IsFeatured, Blocks: []ResolvedBlock{}}
	if app.DeepLink != "" && IsValidDeepLink(app.DeepLink) {
		out.Connect = r.deepLink(app.DeepLink)
	}
	steps := []*Step{app.InstallationStep, app.AddSubscriptionStep, app.ConnectAndUseStep}
	for i, step := range steps {
		if step == nil {
			continue
		}
		block := ResolvedBlock{
			Title:       r.translation(stepTitleKeys[i]),
			Description: step.Description.Resolve(r.req.Lang),
			Color:       blockColors[defaultBlockColor],
			Buttons:     []ResolvedButton{},
		}
		for _, btn := range step.Buttons {
			link := resolveURL(btn.ButtonLink, r.vars)
			if !IsValidExternalURL(link) {
				continue
			}
			block.Buttons = append(block.Buttons, ResolvedButton{
				Type: ButtonExternal,
				Text: btn.ButtonText.Resolve(r.req.Lang),
				URL:  link,
			})
		}
		if i == 2 && out.Connect != "" {
			block.Buttons = append(block.Buttons, ResolvedButton{
				Type: ButtonSubscriptionLink,
				Text: r.translation("openApp"),
				URL:  out.Connect,
			})
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out
}

func (r *resolver) blockApp(apps []BlockApp, view *View) *ResolvedApp {
	idx := 0
	for i, a := range apps {
		view.Apps = append(view.Apps, AppOption{Name: a.Name, Featured: a.Featured})
		if a.Featured && !apps[idx].Featured {
			idx = i
		}
	}
	if i := r.requested(view.Apps); i >= 0 {
		idx = i
	}
	app := apps[idx]

	out := &ResolvedApp{Name: app.Name, Featured: app.Featured, Blocks: []ResolvedBlock{}}
	if app.DeepLink != "" && IsValidDeepLink(resolveURL(app.DeepLink, r.vars)) {
		out.Connect = r.deepLink(app.DeepLink)
	}
	for i, b := range app.Blocks {
		title := b.Title.Resolve(r.req.Lang)
		if title == "" && i < len(stepTitleKeys) {
			title = r.translation(stepTitleKeys[i])
		}
		color := b.SvgIconColor
		if color == "" {
			color = defaultBlockColor
		}
		if hex, ok := blockColors[color]; ok {
			color = hex
		}
		block := ResolvedBlock{
			Title:       title,
			Description: b.Description.Resolve(r.req.Lang),
			Color:       color,
			Icon:        r.icon(b.SvgIconKey),
			Buttons:     []ResolvedButton{},
		}
		for _, btn := range b.Buttons {
			if rb, ok := r.button(app, btn); ok {
				block.Buttons = append(block.Buttons, rb)
			}
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out
}

func (r *resolver) button(app BlockApp, btn Button) (ResolvedButton, bool) {
	text := btn.Text.Resolve(r.req.Lang)
	if text == "" {
		text = r.translation("openApp")
	}
	out := ResolvedButton{Type: btn.Type, Text: text, Icon: r.icon(btn.SvgIconKey)}

	switch btn.Type {
	case ButtonSubscriptionLink:
		link := app.DeepLink
		if link == "" {
			link = r.buttonURL(btn)
		}
		if !IsValidDeepLink(resolveURL(link, r.vars)) {
			return out, false
		}
		out.URL = r.deepLink(link)
	case ButtonCopy:
		if r.cfg.HideLink || r.vars.SubscriptionURL == "" {
			return out, false
		}
		out.Text = btn.Text.Resolve(r.req.Lang)
		if out.Text == "" {
			out.Text = r.translation("copyLink")
		}
		out.URL = r.vars.SubscriptionURL
	default:
		out.Type = ButtonExternal
		href := r.buttonURL(btn)
		if !IsValidExternalURL(href) {
			return out, false
		}
		out.URL = href
	}
	return out, true
}

func (r *resolver) buttonURL(btn Button) string {
	for _, s := range []string{btn.ResolvedURL, btn.URL, btn.Link} {
		if s != "" {
			return resolveURL(s, r.vars)
		}
	}
	return ""
}

// deepLink fills templates and, unless the caller is on a mobile
// platform, routes the link through the redirect page.
func (r *resolver) deepLink(link string) string {
	resolved := resolveURL(link, r.vars)
	if IsMobile(r.detected) || r.req.Origin == "" {
		return resolved
	}
	path := r.req.RedirectPath
	if path == "" {
		path = DefaultRedirectPath
	}
	return RedirectURL(r.req.Origin, path, resolved, r.req.Lang)
}

func (r *resolver) translation(key string) string {
	if text := r.cfg.BaseTranslations[key].Resolve(r.req.Lang); text != "" {
		return text
	}
	return defaultTranslations[key]
}

func (r *resolver) icon(key string) string {
	if key == "" {
		return ""
	}
	return string(r.cfg.SvgLibrary[key])
}

func (r *resolver) requested(apps []AppOption) int {
	if r.req.App == "" {
		return -1
	}
	for i, a := range apps {
		if a.Name == r.req.App {
			return i
		}
	}
	return -1
}
