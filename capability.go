package termrender

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// DetectionMethod records how a capability was established.
type DetectionMethod int

const (
	// DetectionNone means the capability was not detected.
	DetectionNone DetectionMethod = iota
	// DetectionQuery means the terminal answered a direct query.
	DetectionQuery
	// DetectionEnv means the capability was inferred from the environment.
	DetectionEnv
)

// Capabilities are the detected facts about the attached terminal. Populated
// once by DetectCapabilities and treated as immutable afterwards.
type Capabilities struct {
	ColorSupport ColorSupport

	Sixel       bool
	SixelMethod DetectionMethod
	Kitty       bool
	KittyMethod DetectionMethod
	ITerm2      bool

	// Pixel dimensions of one character cell, from the sixel geometry
	// query. Zero when unknown.
	CellWidth  int
	CellHeight int

	Multiplexer bool
	Remote      bool

	// NeedsScrollClear marks terminals that leave sixel artifacts behind
	// after the buffer scrolls and need an explicit clear-and-redraw.
	NeedsScrollClear bool
}

// QueryProvider writes an escape query to the terminal and returns the
// response. Implementations own raw-mode handling and must honor the
// context's deadline; an unresponsive terminal surfaces as an error, never
// a hang.
type QueryProvider interface {
	Query(ctx context.Context, query string) (string, error)
}

// Terminal queries. The kitty probe is fenced with DA1 so a terminal that
// ignores APC still produces a parseable response.
const (
	da1Query      = "\x1b[c"
	cellSizeQuery = "\x1b[16t"
	kittyQuery    = "\x1b_Gi=31,s=1,v=1,a=q;AAAA\x1b\\" + da1Query
)

type detector struct {
	query QueryProvider
	env   map[string]string // nil means the process environment
	tty   *bool
}

// DetectOption configures capability detection.
type DetectOption func(*detector)

// WithQueryProvider enables direct terminal queries. Without one, detection
// is environment-only.
func WithQueryProvider(qp QueryProvider) DetectOption {
	return func(d *detector) {
		d.query = qp
	}
}

// WithEnvironment substitutes the given variables for the process
// environment.
func WithEnvironment(vars map[string]string) DetectOption {
	return func(d *detector) {
		d.env = vars
	}
}

// WithTTY overrides the stdout tty check that gates terminal queries.
func WithTTY(isTTY bool) DetectOption {
	return func(d *detector) {
		d.tty = &isTTY
	}
}

// DetectCapabilities probes the terminal once. Queries are attempted first
// when a provider is configured and stdout is a tty; any query failure or
// timeout falls back to environment inspection. Detection never returns an
// error: whatever cannot be established is reported unsupported.
func DetectCapabilities(ctx context.Context, opts ...DetectOption) Capabilities {
	d := &detector{}
	for _, opt := range opts {
		opt(d)
	}

	caps := Capabilities{
		ColorSupport: d.colorSupport(),
	}

	term := d.getenv("TERM")
	caps.Multiplexer = d.getenv("TMUX") != "" ||
		strings.HasPrefix(term, "screen") ||
		strings.HasPrefix(term, "tmux")
	caps.Remote = d.getenv("SSH_CONNECTION") != ""
	caps.NeedsScrollClear = d.getenv("KONSOLE_VERSION") != ""

	caps.ITerm2 = d.getenv("TERM_PROGRAM") == "iTerm.app" ||
		d.getenv("LC_TERMINAL") == "iTerm2"

	d.detectSixel(ctx, &caps)
	d.detectKitty(ctx, &caps)
	return caps
}

func (d *detector) getenv(key string) string {
	if d.env != nil {
		return d.env[key]
	}
	return os.Getenv(key)
}

func (d *detector) isTTY() bool {
	if d.tty != nil {
		return *d.tty
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (d *detector) canQuery(ctx context.Context) bool {
	return d.query != nil && d.isTTY() && ctx.Err() == nil
}

func (d *detector) colorSupport() ColorSupport {
	var profile termenv.Profile
	if d.env != nil {
		out := termenv.NewOutput(io.Discard, termenv.WithEnvironment(environMap(d.env)))
		profile = out.EnvColorProfile()
	} else {
		profile = termenv.EnvColorProfile()
	}

	switch profile {
	case termenv.TrueColor:
		return ColorSupportTrueColor
	case termenv.ANSI256:
		return ColorSupport256
	case termenv.ANSI:
		return ColorSupport16
	default:
		return ColorSupportNone
	}
}

// detectSixel asks DA1 for feature 4 and, on success, the cell pixel
// geometry. The environment fallback covers terminals known to implement
// sixel without answering queries through a multiplexer.
func (d *detector) detectSixel(ctx context.Context, caps *Capabilities) {
	if d.canQuery(ctx) {
		if resp, err := d.query.Query(ctx, da1Query); err == nil {
			if hasDA1Feature(resp, 4) {
				caps.Sixel = true
				caps.SixelMethod = DetectionQuery
				d.queryCellSize(ctx, caps)
			}
			return
		}
	}

	if sixelEnvSupported(d.getenv) {
		caps.Sixel = true
		caps.SixelMethod = DetectionEnv
	}
}

func (d *detector) queryCellSize(ctx context.Context, caps *Capabilities) {
	if !d.canQuery(ctx) {
		return
	}
	resp, err := d.query.Query(ctx, cellSizeQuery)
	if err != nil {
		return
	}
	if w, h, ok := parseCellSize(resp); ok {
		caps.CellWidth = w
		caps.CellHeight = h
	}
}

// detectKitty sends the graphics probe fenced with DA1; a terminal with the
// protocol echoes the probe's image id back before the DA1 answer.
func (d *detector) detectKitty(ctx context.Context, caps *Capabilities) {
	if d.canQuery(ctx) {
		if resp, err := d.query.Query(ctx, kittyQuery); err == nil {
			if strings.Contains(resp, "\x1b_Gi=31") {
				caps.Kitty = true
				caps.KittyMethod = DetectionQuery
			}
			return
		}
	}

	if d.getenv("KITTY_WINDOW_ID") != "" || d.getenv("TERM") == "xterm-kitty" {
		caps.Kitty = true
		caps.KittyMethod = DetectionEnv
	}
}

// hasDA1Feature reports whether a DA1 response (CSI ? f1 ; f2 ... c) lists
// the given feature number.
func hasDA1Feature(resp string, feature int) bool {
	start := strings.Index(resp, "[?")
	if start < 0 {
		return false
	}
	end := strings.IndexByte(resp[start:], 'c')
	if end < 0 {
		return false
	}
	want := strconv.Itoa(feature)
	for _, field := range strings.Split(resp[start+2:start+end], ";") {
		if field == want {
			return true
		}
	}
	return false
}

// parseCellSize extracts the cell pixel dimensions from a CSI 6 ; h ; w t
// response.
func parseCellSize(resp string) (width, height int, ok bool) {
	start := strings.Index(resp, "[6;")
	if start < 0 {
		return 0, 0, false
	}
	end := strings.IndexByte(resp[start:], 't')
	if end < 0 {
		return 0, 0, false
	}
	fields := strings.Split(resp[start+3:start+end], ";")
	if len(fields) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(fields[0])
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	w, err := strconv.Atoi(fields[1])
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

var sixelTerms = map[string]bool{
	"foot":          true,
	"mlterm":        true,
	"yaft":          true,
	"yaft-256color": true,
}

func sixelEnvSupported(getenv func(string) string) bool {
	term := getenv("TERM")
	if strings.Contains(term, "sixel") || sixelTerms[term] {
		return true
	}
	switch getenv("TERM_PROGRAM") {
	case "WezTerm", "mintty":
		return true
	}
	return false
}

// environMap adapts a plain map to termenv's environment interface.
type environMap map[string]string

func (e environMap) Environ() []string {
	vars := make([]string, 0, len(e))
	for k, v := range e {
		vars = append(vars, k+"="+v)
	}
	return vars
}

func (e environMap) Getenv(key string) string {
	return e[key]
}
