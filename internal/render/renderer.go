package render

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/guidoenr/beatscope/internal/analyzer"
	"github.com/guidoenr/beatscope/internal/params"
)

type colorMode string

const (
	colorModeChromatic colorMode = "chromatic"
	colorModeFire      colorMode = "fire"
	colorModeAurora    colorMode = "aurora"
	colorModeMono      colorMode = "mono"
)

var colorModeNames = []string{
	string(colorModeChromatic),
	string(colorModeFire),
	string(colorModeAurora),
	string(colorModeMono),
}

// DisplayBins is how many low bins are drawn; the upper half of a 2048-point
// spectrum carries little visible energy.
const DisplayBins = 512

// Windowed geometry: 512 two-pixel bars mirrored around the horizontal center.
const (
	WindowWidth  = 1024
	WindowHeight = 480
	barWidth     = 2
	indicatorPx  = 10
)

// ErrRendererQuit is returned by Frame.Present when the window was closed.
var ErrRendererQuit = errors.New("renderer: quit requested")

// beat indicator color, rgb(255, 69, 0)
const indicatorANSI = 202

// ColorModeNames returns the supported color modes.
func ColorModeNames() []string {
	out := make([]string, len(colorModeNames))
	copy(out, colorModeNames)
	sort.Strings(out)
	return out
}

func parseColorMode(name string) colorMode {
	switch strings.ToLower(name) {
	case "fire":
		return colorModeFire
	case "aurora", "cool":
		return colorModeAurora
	case "mono", "monochrome", "bw", "gray":
		return colorModeMono
	default:
		return colorModeChromatic
	}
}

// Config controls Renderer creation.
type Config struct {
	Width     int
	Height    int
	Palette   string
	ColorMode string
	UseANSI   bool
	// Windowed selects the SDL backend (requires the sdl build tag).
	Windowed bool
}

// Status is the playback readout shown under the bars.
type Status struct {
	Frame   int
	Frames  int
	Elapsed time.Duration
	Levels  analyzer.Levels
	Beats   int
	FPS     float64
	Paused  bool
}

// Renderer converts smoothed bar state into terminal lines or SDL draw calls.
type Renderer struct {
	width         int
	height        int
	palette       palette
	paletteName   string
	colorMode     colorMode
	useANSI       bool
	sdl           *sdlState
	statusBuilder strings.Builder
}

// Frame contains the rendered lines, the status text and, for the windowed
// backend, a Present hook that flushes to the screen.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// New creates a Renderer.
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		width:   cfg.Width,
		height:  cfg.Height,
		useANSI: cfg.UseANSI,
	}
	if cfg.Windowed {
		r.width = WindowWidth
		r.height = WindowHeight
		if err := r.initSDL(); err != nil {
			return nil, err
		}
	}
	if r.width <= 0 || r.height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", r.width, r.height)
	}
	r.Configure(cfg.Palette, cfg.ColorMode)
	return r, nil
}

// Configure updates palette and color mode.
func (r *Renderer) Configure(paletteName, colorModeName string) {
	if _, ok := palettes[paletteName]; !ok {
		paletteName = "blocks"
	}
	r.palette = lookupPalette(paletteName)
	r.paletteName = paletteName
	r.colorMode = parseColorMode(colorModeName)
}

// Resize updates the terminal dimensions. The windowed backend keeps its
// fixed geometry.
func (r *Renderer) Resize(width, height int) {
	if r.windowed() {
		return
	}
	if width > 0 {
		r.width = width
	}
	if height > 0 {
		r.height = height
	}
}

func (r *Renderer) PaletteName() string   { return r.paletteName }
func (r *Renderer) ColorModeName() string { return string(r.colorMode) }

// Columns is the number of bars the current backend draws.
func (r *Renderer) Columns() int {
	if r.windowed() {
		return WindowWidth / barWidth
	}
	return r.width
}

// Close releases backend resources.
func (r *Renderer) Close() error {
	return r.closeSDL()
}

func (r *Renderer) windowed() bool {
	return r.sdl != nil
}

// Render draws p.Bars mirrored around the horizontal center with the beat
// indicator in the bottom-right corner.
func (r *Renderer) Render(p *params.Parameters, st Status) Frame {
	status := r.buildStatus(st)
	if r.windowed() {
		return r.renderSDL(p, status)
	}
	if r.width <= 0 || r.height <= 0 {
		return Frame{}
	}

	width := r.width
	height := r.height
	lines := make([]string, height)
	bars := fitColumns(p.Bars, width)
	peaks := fitColumns(p.Peaks, width)
	half := float64(height) / 2
	lit := p.BeatLit()

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowJobs {
				var builder strings.Builder
				builder.Grow(width * 8)
				lastColor := -1
				dist := rowDistance(y, height)
				for x := 0; x < width; x++ {
					char := r.cell(bars[x]*half, peaks[x]*half, dist, y < height/2)
					fg := r.barColor(x, width, bars[x])
					if lit && y == height-1 && x >= width-2 {
						char = '●'
						fg = indicatorANSI
					}
					if r.useANSI && fg != lastColor {
						builder.WriteString(colorCode(fg))
						lastColor = fg
					}
					builder.WriteRune(char)
				}
				if r.useANSI {
					builder.WriteString(resetANSI)
				}
				lines[y] = builder.String()
			}
		}()
	}

	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return Frame{Lines: lines, Status: status}
}

// rowDistance is how many cells row y sits away from the center line.
func rowDistance(y, height int) float64 {
	center := height / 2
	if y < center {
		return float64(center - y - 1)
	}
	return float64(y - center)
}

func (r *Renderer) cell(level, peak, dist float64, upper bool) rune {
	fill := clampFloat(level-dist, 0, 1)
	if fill <= 0 {
		if upper && peak > 0 && int(peak) == int(dist) {
			return r.palette.peak
		}
		return ' '
	}
	glyphs := r.palette.glyphs
	index := clampInt(int(fill*float64(len(glyphs)-1)+0.5), 0, len(glyphs)-1)
	return glyphs[index]
}

func (r *Renderer) barColor(x, width int, level float64) int {
	if !r.useANSI {
		return 15
	}
	pos := 0.0
	if width > 1 {
		pos = float64(x) / float64(width-1)
	}

	var h, s, v float64
	switch r.colorMode {
	case colorModeFire:
		h = clamp01(0.02 + level*0.1)
		s = clamp01(0.75 + level*0.25)
		v = clamp01(0.45 + level*0.55)
	case colorModeAurora:
		h = clamp01(0.45 + pos*0.3)
		s = 0.6
		v = clamp01(0.35 + level*0.65)
	case colorModeMono:
		h, s = 0, 0
		v = clamp01(0.3 + level*0.7)
	default:
		// spring green at the low end, matching the windowed backend
		h = math.Mod(0.42+pos*0.6, 1.0)
		s = 0.85
		v = clamp01(0.5 + level*0.5)
	}
	return hsvToANSI(h, s, v)
}

// fitColumns resamples values onto n columns by averaging (or repeating).
func fitColumns(values []float64, n int) []float64 {
	out := make([]float64, n)
	if len(values) == 0 || n <= 0 {
		return out
	}
	for x := 0; x < n; x++ {
		lo := x * len(values) / n
		hi := (x + 1) * len(values) / n
		if hi <= lo {
			out[x] = values[lo]
			continue
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[x] = sum / float64(hi-lo)
	}
	return out
}

// Downsample averages row onto n buckets; the app uses it to feed params.
func Downsample(row []float64, n int) []float64 {
	return fitColumns(row, n)
}

func colorCode(index int) string {
	if index < 0 {
		index = 0
	} else if index >= len(precomputedANSI) {
		index = len(precomputedANSI) - 1
	}
	return precomputedANSI[index]
}

func hsvToANSI(h, s, v float64) int {
	r, g, b := hsvToRGB(h, s, v)
	return rgbToANSI(r, g, b)
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	h = clamp01(h)
	s = clamp01(s)
	v = clamp01(v)

	if s == 0 {
		return v, v, v
	}

	hv := h * 6.0
	i := math.Floor(hv)
	f := hv - i
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))

	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func rgbToANSI(r, g, b float64) int {
	r = clamp01(r)
	g = clamp01(g)
	b = clamp01(b)

	// Grayscale palette for low saturation/contrast
	if math.Abs(r-g) < 0.02 && math.Abs(g-b) < 0.02 {
		gray := int(clampFloat(math.Round(r*23), 0, 23))
		return 232 + gray
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (r *Renderer) buildStatus(st Status) string {
	builder := &r.statusBuilder
	builder.Reset()
	builder.Grow(128)
	builder.WriteString(colorModeLabel(r.colorMode))
	builder.WriteString(" | palette=")
	builder.WriteString(r.paletteName)
	builder.WriteString(" | ")
	builder.WriteString(formatClock(st.Elapsed))
	builder.WriteString(" frame ")
	builder.WriteString(strconv.Itoa(st.Frame))
	builder.WriteByte('/')
	builder.WriteString(strconv.Itoa(st.Frames))
	builder.WriteString(" beats ")
	builder.WriteString(strconv.Itoa(st.Beats))
	builder.WriteString(" | bass ")
	appendFloat(builder, st.Levels.Bass, 2)
	builder.WriteString(" mid ")
	appendFloat(builder, st.Levels.Mid, 2)
	builder.WriteString(" treble ")
	appendFloat(builder, st.Levels.Treble, 2)
	builder.WriteString(" fps ")
	appendFloat(builder, st.FPS, 1)
	if st.Paused {
		builder.WriteString(" [paused]")
	}
	return builder.String()
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func colorModeLabel(mode colorMode) string {
	switch mode {
	case colorModeFire:
		return "FIRE"
	case colorModeAurora:
		return "AURORA"
	case colorModeMono:
		return "MONO"
	default:
		return "CHROMATIC"
	}
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}
