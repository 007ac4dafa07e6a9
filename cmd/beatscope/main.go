package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/guidoenr/beatscope/internal/app"
	"github.com/guidoenr/beatscope/internal/audio"
	"github.com/guidoenr/beatscope/internal/config"
	"github.com/guidoenr/beatscope/internal/render"
	"golang.org/x/term"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Optional YAML file with analysis settings")
		frameSize   = flag.Int("frame-size", config.DefaultFrameSize, "Samples per analysis frame")
		sampleRate  = flag.Int("sample-rate", config.DefaultSampleRate, "Analysis sample rate in Hz; input is resampled to it")
		workers     = flag.Int("workers", 0, "Parallel transform workers (0 = GOMAXPROCS)")
		bands       = flag.String("bands", "", "Detection bands as name:min-max,... (default kick:60-130,snare:301-750)")
		synthetic   = flag.Bool("synthetic", false, "Analyze a generated drum loop instead of a file")
		synthLength = flag.Duration("synthetic-duration", 8*time.Second, "Length of the generated loop")
		mute        = flag.Bool("mute", false, "Skip audio output and follow the wall clock")
		deviceName  = flag.String("audio-device", "", "Optional PortAudio output device name (substring match)")
		listDevs    = flag.Bool("list-audio-devices", false, "List available audio output devices and exit")
		width       = flag.Int("width", 80, "Terminal frame width")
		height      = flag.Int("height", 24, "Terminal frame height")
		targetFPS   = flag.Float64("fps", 60, "Target frames per second")
		palette     = flag.String("palette", "blocks", "Bar palette ("+strings.Join(render.PaletteNames(), "|")+")")
		colorMode   = flag.String("color-mode", "chromatic", "Color mode ("+strings.Join(render.ColorModeNames(), "|")+")")
		noColor     = flag.Bool("no-color", false, "Disable ANSI color output")
		windowed    = flag.Bool("window", false, "Draw in an SDL window (requires the sdl build tag)")
		showStatus  = flag.Bool("status", true, "Display status bar")
		reportPath  = flag.String("report", "", "Write the per-band beat report as JSON to this path")
		analyzeOnly = flag.Bool("analyze-only", false, "Analyze, print beat timestamps and exit")
		profilePath = flag.String("profile", "", "Append CSV section timings to this path")
		webPort     = flag.Int("web-port", 0, "Serve status, beats and spectrum over HTTP on this port (0 = off)")
		debug       = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file.wav|file.mp3>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New(os.Stdout, "[beatscope] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	if *listDevs {
		if err := audio.Initialize(); err != nil {
			logger.Fatalf("%v", err)
		}
		defer audio.Terminate()
		devices, err := audio.ListDevices()
		if err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		fmt.Printf("\n=== Audio Output Devices ===\n\n")
		for _, dev := range devices {
			markers := ""
			if dev.IsDefault {
				markers = " (default)"
			}
			fmt.Printf("- %s [%s]%s\n    outputs:%d sample:%.0f Hz\n",
				dev.Name, dev.HostAPI, markers, dev.MaxOutput, dev.DefaultSampleHz)
		}
		return
	}

	analysis, err := config.Loader{Path: *configPath}.Load()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	// explicit flags win over the file and the environment
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "frame-size":
			analysis.FrameSize = *frameSize
		case "sample-rate":
			analysis.SampleRate = *sampleRate
		case "workers":
			analysis.Workers = *workers
		case "bands":
			parsed, err := config.ParseBands(*bands)
			if err != nil {
				flagErr = err
				return
			}
			analysis.Bands = parsed
		}
	})
	if flagErr != nil {
		logger.Fatalf("%v", flagErr)
	}
	if err := analysis.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	if !*synthetic && flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *targetFPS <= 0 {
		logger.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if !slices.Contains(render.PaletteNames(), *palette) {
		logger.Fatalf("unknown palette %q (want one of %s)", *palette, strings.Join(render.PaletteNames(), ", "))
	}
	if *windowed && !render.SupportsSDL() {
		logger.Fatalf("-window needs a binary built with -tags sdl")
	}

	appConfig := app.Config{
		Path:          flag.Arg(0),
		Analysis:      analysis,
		Synthetic:     *synthetic,
		SynthDuration: *synthLength,
		DeviceName:    *deviceName,
		Mute:          *mute,
		Width:         *width,
		Height:        *height,
		TargetFPS:     *targetFPS,
		ShowStatusBar: *showStatus,
		Palette:       *palette,
		ColorMode:     *colorMode,
		UseANSI:       !*noColor,
		Windowed:      *windowed,
		ReportPath:    *reportPath,
		ProfilePath:   *profilePath,
		WebPort:       *webPort,
		Log:           logger,
	}

	if *analyzeOnly {
		if err := analyzeOnlyRun(appConfig); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}

	if fd := int(os.Stdout.Fd()); fd >= 0 && !*windowed {
		if w, h, err := term.GetSize(fd); err == nil {
			if w > 0 {
				appConfig.Width = w
			}
			if h > 0 {
				appConfig.Height = h
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(appConfig)
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Fatalf("runtime error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
}

// analyzeOnlyRun prints one beat timestamp per line in microseconds.
func analyzeOnlyRun(cfg app.Config) error {
	a, err := app.Analyze(cfg)
	if err != nil {
		return err
	}
	if cfg.ReportPath != "" {
		if err := app.WriteReport(cfg.ReportPath, a); err != nil {
			return err
		}
		cfg.Log.Printf("beat report written to %s", cfg.ReportPath)
	}
	for _, us := range a.Beats.Sorted() {
		fmt.Println(us)
	}
	return nil
}
