package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/guidoenr/beatscope/internal/analyzer"
	"github.com/guidoenr/beatscope/internal/audio"
	"github.com/guidoenr/beatscope/internal/config"
	"github.com/guidoenr/beatscope/internal/decode"
	"github.com/guidoenr/beatscope/internal/params"
	"github.com/guidoenr/beatscope/internal/render"
	"github.com/guidoenr/beatscope/internal/report"
	"github.com/guidoenr/beatscope/internal/web"
	"golang.org/x/term"
)

// Config configures the application runtime.
type Config struct {
	Path          string
	Analysis      config.Config
	Synthetic     bool
	SynthDuration time.Duration
	DeviceName    string
	Mute          bool
	Width         int
	Height        int
	TargetFPS     float64
	ShowStatusBar bool
	Palette       string
	ColorMode     string
	UseANSI       bool
	Windowed      bool
	ReportPath    string
	ProfilePath   string
	WebPort       int
	Log           *log.Logger
}

type inputEvent int

const (
	inputEventQuit inputEvent = iota
	inputEventPause
	inputEventCycleColor
)

// Analysis is the result of decoding and analyzing one source.
type Analysis struct {
	Name        string
	Buffer      *decode.Buffer
	Engine      *analyzer.Engine
	Spectrogram analyzer.Spectrogram
	Bands       []analyzer.Band
	BandBeats   []analyzer.BeatSet
	Beats       analyzer.BeatSet
}

// App ties together decoding, analysis, playback and rendering.
type App struct {
	cfg          Config
	analysis     *Analysis
	params       params.Parameters
	renderer     *render.Renderer
	state        *audio.PlaybackState
	player       *audio.Player
	audioReady   bool
	prof         *profiler
	web          *web.Server
	log          *log.Logger
	width        int
	height       int
	renderHeight int
	inputEvents  chan inputEvent
	colorOptions []string
	last         time.Time
	lastFrame    int
	levels       []float64

	mu       sync.RWMutex
	snapshot web.Snapshot
}

const defaultSynthDuration = 8 * time.Second

// Analyze decodes (or synthesizes) the configured source, computes its
// spectrogram and detects beats over every configured band.
func Analyze(cfg Config) (*Analysis, error) {
	return analyze(cfg, nil)
}

func analyze(cfg Config, prof *profiler) (*Analysis, error) {
	logger := cfg.Log
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	if err := cfg.Analysis.Validate(); err != nil {
		return nil, err
	}
	engine, err := analyzer.New(cfg.Analysis.AnalyzerConfig())
	if err != nil {
		return nil, err
	}

	prof.begin("analysis")
	var (
		buf  *decode.Buffer
		name string
	)
	if cfg.Synthetic {
		name = "synthetic"
		duration := cfg.SynthDuration
		if duration <= 0 {
			duration = defaultSynthDuration
		}
		buf = Synthesize(SynthConfig{SampleRate: engine.SampleRate(), Duration: duration})
		logger.Printf("synthesized %d samples", buf.Len())
	} else {
		if cfg.Path == "" {
			return nil, errors.New("no audio file given")
		}
		name = filepath.Base(cfg.Path)
		logger.Printf("decoding %s", cfg.Path)
		buf, err = decode.File(cfg.Path, engine.SampleRate())
		if err != nil {
			return nil, err
		}
		logger.Printf("decoded %d samples (%s)", buf.Len(), buf.Duration().Round(time.Millisecond))
	}
	prof.mark("decode")

	logger.Printf("performing DFT (%d-sample frames)", engine.FrameSize())
	spec, err := engine.Analyze(buf)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	prof.mark("spectrogram")

	bands := cfg.Analysis.AnalyzerBands()
	logger.Printf("detecting beats in %d frames over %d bands", spec.Frames(), len(bands))
	perBand, err := engine.DetectEach(spec, bands...)
	if err != nil {
		return nil, err
	}
	beats := analyzer.UnionAll(perBand...)
	prof.mark("beats")
	prof.end("analysis")
	logger.Printf("found %d beats", beats.Len())

	return &Analysis{
		Name:        name,
		Buffer:      buf,
		Engine:      engine,
		Spectrogram: spec,
		Bands:       bands,
		BandBeats:   perBand,
		Beats:       beats,
	}, nil
}

// WriteReport stores the per-band beat report for an analysis.
func WriteReport(path string, a *Analysis) error {
	rec, err := report.FromBands(a.Name, a.Engine, a.Spectrogram.Frames(), a.Bands, a.BandBeats)
	if err != nil {
		return err
	}
	return report.Write(path, rec)
}

// New analyzes the source and prepares playback and rendering.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	prof := newProfiler(cfg.ProfilePath, cfg.Log)
	analysis, err := analyze(cfg, prof)
	if err != nil {
		_ = prof.Close()
		return nil, err
	}
	if cfg.ReportPath != "" {
		if err := WriteReport(cfg.ReportPath, analysis); err != nil {
			_ = prof.Close()
			return nil, err
		}
		cfg.Log.Printf("beat report written to %s", cfg.ReportPath)
	}

	renderer, err := render.New(render.Config{
		Width:     cfg.Width,
		Height:    renderHeight,
		Palette:   cfg.Palette,
		ColorMode: cfg.ColorMode,
		UseANSI:   cfg.UseANSI,
		Windowed:  cfg.Windowed,
	})
	if err != nil {
		_ = prof.Close()
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		analysis:     analysis,
		params:       params.Defaults(),
		renderer:     renderer,
		state:        audio.NewPlaybackState(analysis.Buffer.Samples(), analysis.Engine.SampleRate()),
		prof:         prof,
		log:          cfg.Log,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
		colorOptions: render.ColorModeNames(),
		lastFrame:    -1,
	}

	if !cfg.Mute {
		if err := audio.Initialize(); err != nil {
			_ = a.Close()
			return nil, err
		}
		a.audioReady = true
		player, err := audio.NewPlayer(a.state, audio.PlayerConfig{
			DeviceName:      cfg.DeviceName,
			FramesPerBuffer: analysis.Engine.FrameSize(),
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("audio output: %w", err)
		}
		a.player = player
		if info := player.Device(); info != nil {
			a.log.Printf("playing on \"%s\" @ %d Hz", info.Name, analysis.Engine.SampleRate())
		}
	} else {
		a.log.Println("audio output muted, following the wall clock")
	}

	if cfg.WebPort > 0 {
		a.web = web.NewServer(a, a.log)
	}
	return a, nil
}

// Run drives the render loop until playback ends, the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	frameSeconds := 1.0 / a.cfg.TargetFPS
	ticker := time.NewTicker(time.Duration(frameSeconds * float64(time.Second)))
	defer ticker.Stop()

	if a.web != nil {
		go func() {
			if err := a.web.Start(ctx, a.cfg.WebPort); err != nil {
				a.log.Printf("web server stopped: %v", err)
			}
		}()
	}

	if !a.cfg.Windowed {
		enterAltScreen()
		clearScreen()
		hideCursor()
		defer func() {
			showCursor()
			exitAltScreen()
		}()
	}

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	a.startInputListener(inputCtx)
	a.ensureDimensions()
	a.last = time.Now()

	for {
		select {
		case <-ctx.Done():
			moveCursorHome()
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			switch evt {
			case inputEventQuit:
				moveCursorHome()
				return nil
			case inputEventPause:
				paused := a.state.TogglePause()
				a.log.Printf("paused=%v", paused)
			case inputEventCycleColor:
				a.cycleColorMode()
			}
		case <-ticker.C:
			done, err := a.step()
			if err != nil {
				return err
			}
			if done {
				moveCursorHome()
				return nil
			}
		}
	}
}

// Close releases held resources.
func (a *App) Close() error {
	var errs []error
	if a.player != nil {
		errs = append(errs, a.player.Close())
		a.player = nil
	}
	if a.audioReady {
		audio.Terminate()
		a.audioReady = false
	}
	if a.renderer != nil {
		errs = append(errs, a.renderer.Close())
	}
	errs = append(errs, a.prof.Close())
	return errors.Join(errs...)
}

// step renders the spectrogram row matching the playback clock. It reports
// done once playback has run past the last row.
func (a *App) step() (bool, error) {
	a.ensureDimensions()

	now := time.Now()
	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TargetFPS
	}
	a.last = now

	if a.player == nil {
		a.state.Advance(int(delta * float64(a.state.SampleRate())))
	}

	frame, ok := a.advance(a.state.Elapsed(), delta)
	if !ok {
		return true, nil
	}

	a.prof.begin("frame")
	fps := 1.0 / delta
	out := a.renderer.Render(&a.params, a.status(frame, fps))
	a.prof.mark("render")

	if out.Present != nil {
		if err := out.Present(out.Status); err != nil {
			if errors.Is(err, render.ErrRendererQuit) {
				return true, nil
			}
			return false, err
		}
		a.prof.end("frame")
		return false, nil
	}

	moveCursorHome()
	for _, line := range out.Lines {
		fmt.Println(line)
	}
	if a.cfg.ShowStatusBar {
		fmt.Println(statusBar(out.Status, a.width))
	}
	a.prof.end("frame")
	return false, nil
}

// advance feeds the row at elapsed into the display parameters. Beats on rows
// skipped since the previous call still light the indicator.
func (a *App) advance(elapsed time.Duration, delta float64) (int, bool) {
	an := a.analysis
	frame := an.Engine.FrameAt(elapsed)
	if frame >= an.Spectrogram.Frames() {
		return frame, false
	}

	beat := false
	from := a.lastFrame + 1
	if from > frame {
		from = frame
	}
	for f := from; f <= frame; f++ {
		if an.Beats.Contains(an.Engine.Timestamp(f)) {
			beat = true
			break
		}
	}
	a.lastFrame = frame

	row := an.Spectrogram[frame]
	if len(row) > render.DisplayBins {
		row = row[:render.DisplayBins]
	}
	a.levels = a.params.Normalize(render.Downsample(row, a.renderer.Columns()), a.levels)
	a.params.ApplyFrame(a.levels, beat, delta)

	a.mu.Lock()
	a.snapshot = web.Snapshot{
		Frame:           frame,
		Frames:          an.Spectrogram.Frames(),
		ElapsedMs:       elapsed.Milliseconds(),
		FrameDurationNs: int64(an.Engine.FrameDuration()),
		Beat:            beat,
		Levels:          web.LevelsOf(an.Engine.Levels(an.Spectrogram[frame]).Scale(a.params.Gain)),
		Paused:          a.state.Paused(),
	}
	a.mu.Unlock()
	return frame, true
}

func (a *App) status(frame int, fps float64) render.Status {
	an := a.analysis
	a.mu.Lock()
	a.snapshot.FPS = fps
	a.mu.Unlock()
	return render.Status{
		Frame:   frame,
		Frames:  an.Spectrogram.Frames(),
		Elapsed: a.state.Elapsed(),
		Levels:  an.Engine.Levels(an.Spectrogram[frame]).Scale(a.params.Gain),
		Beats:   an.Beats.Len(),
		FPS:     fps,
		Paused:  a.state.Paused(),
	}
}

// Snapshot implements web.Source.
func (a *App) Snapshot() web.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Beats implements web.Source.
func (a *App) Beats() []int64 {
	return a.analysis.Beats.Sorted()
}

// Row implements web.Source.
func (a *App) Row(frame int) ([]float64, bool) {
	spec := a.analysis.Spectrogram
	if frame < 0 || frame >= spec.Frames() {
		return nil, false
	}
	return spec[frame], true
}

func (a *App) cycleColorMode() {
	current := a.renderer.ColorModeName()
	next := a.colorOptions[0]
	for i, name := range a.colorOptions {
		if strings.EqualFold(name, current) {
			next = a.colorOptions[(i+1)%len(a.colorOptions)]
			break
		}
	}
	a.renderer.Configure(a.renderer.PaletteName(), next)
	a.log.Printf("color mode -> %s", next)
}

func (a *App) ensureDimensions() {
	if a.cfg.Windowed {
		return
	}
	fd := int(os.Stdout.Fd())
	if fd < 0 {
		return
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if renderHeight <= 0 {
		renderHeight = 1
	}

	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.renderer.Resize(w, renderHeight)
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				events <- inputEventQuit
				return
			case char == 'q' || char == 'Q':
				events <- inputEventQuit
				return
			case key == keyboard.KeySpace || char == 'p' || char == 'P':
				select {
				case events <- inputEventPause:
				default:
				}
			case char == 'c' || char == 'C':
				select {
				case events <- inputEventCycleColor:
				default:
				}
			}
		}
	}()
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	return text + strings.Repeat(" ", padding)
}

func clearScreen() {
	fmt.Print("\x1b[2J")
	moveCursorHome()
}

func moveCursorHome() {
	fmt.Print("\x1b[H")
}

func hideCursor() {
	fmt.Print("\x1b[?25l")
}

func showCursor() {
	fmt.Print("\x1b[?25h")
}

func enterAltScreen() {
	fmt.Print("\x1b[?1049h")
}

func exitAltScreen() {
	fmt.Print("\x1b[?1049l\x1b[0m")
}
