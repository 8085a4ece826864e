package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/esimov/lbpcascade"
	"github.com/esimov/lbpcascade/config"
	"github.com/esimov/lbpcascade/utils"
)

const HelpBanner = `
┬  ┌┐ ┌─┐┌┬┐┌─┐┌┬┐┌─┐┌─┐┌┬┐
│  ├┴┐├─┘ ││├┤  │ ├┤ │   │
┴─┘└─┘┴  ─┴┘└─┘ ┴ └─┘└─┘ ┴

LBP cascade object detector.
    Version: %s

Usage: lbpdetect [flags] <image|directory|url|->

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

func main() {
	defaults := config.DefaultConfig()

	var (
		// Flags
		classifier  = pflag.StringP("classifier", "c", defaults.Detection.Classifier, "LBP cascade classifier (OpenCV XML or YAML)")
		outDir      = pflag.StringP("out-dir", "o", defaults.Output.Dir, "Output directory, - writes the annotated image to stdout")
		withRef     = pflag.BoolP("with-reference", "w", false, "Run the reference detector and write its output as well")
		refKind     = pflag.String("reference", defaults.Reference.Kind, "Reference detector: pigo or opencv")
		refCascade  = pflag.String("reference-cascade", "", "Cascade file of the reference detector")
		configPath  = pflag.String("config", "", "YAML configuration file")
		saveConfig  = pflag.String("save-config", "", "Write the effective configuration to the given file and exit")
		scaleFactor = pflag.Float64("scale-factor", defaults.Detection.ScaleFactor, "Window magnification between scales")
		step        = pflag.Int("step", defaults.Detection.StepSize, "Sliding window stride in pixels")
		workers     = pflag.Int("workers", defaults.Detection.Workers, "Goroutines scanning window rows (0 = one per CPU)")
		conc        = pflag.Int("conc", defaults.Output.Workers, "Number of files to process concurrently (0 = one per CPU)")
		equalize    = pflag.Bool("equalize", defaults.Preprocess.Equalize, "Equalize the image histogram before the detection")
		maxSize     = pflag.Int("max-size", defaults.Preprocess.MaxSize, "Downscale images whose longest edge exceeds this size (0 = never)")
		format      = pflag.String("format", defaults.Output.Format, "Output image format: jpg, png, gif, bmp or webp")
		rectColor   = pflag.String("color", defaults.Output.Color, "Detection rectangle color")
		thickness   = pflag.Int("thickness", defaults.Output.Thickness, "Detection rectangle line thickness")
		quality     = pflag.Int("quality", defaults.Output.Quality, "JPEG and WebP output quality")
		lossless    = pflag.Bool("lossless", defaults.Output.Lossless, "Lossless WebP output")
	)
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}

	var proc *lbpcascade.Processor
	fatal := func(format string, args ...any) {
		if proc != nil {
			proc.Close()
		}
		fmt.Fprint(os.Stderr, utils.DecorateText(fmt.Sprintf(format, args...), utils.ErrorMessage)+"\n")
		belt.Flush(ctx)
		os.Exit(1)
	}

	cfg := defaults
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fatal("%v", err)
		}
	}

	// Flags explicitly set on the command line take precedence over the config file.
	flags := pflag.CommandLine
	if flags.Changed("classifier") {
		cfg.Detection.Classifier = *classifier
	}
	if flags.Changed("out-dir") {
		cfg.Output.Dir = *outDir
	}
	if flags.Changed("with-reference") {
		cfg.Reference.Enabled = *withRef
	}
	if flags.Changed("reference") {
		cfg.Reference.Kind = *refKind
	}
	if flags.Changed("reference-cascade") {
		cfg.Reference.Cascade = *refCascade
	}
	if flags.Changed("scale-factor") {
		cfg.Detection.ScaleFactor = *scaleFactor
	}
	if flags.Changed("step") {
		cfg.Detection.StepSize = *step
	}
	if flags.Changed("workers") {
		cfg.Detection.Workers = *workers
	}
	if flags.Changed("conc") {
		cfg.Output.Workers = *conc
	}
	if flags.Changed("equalize") {
		cfg.Preprocess.Equalize = *equalize
	}
	if flags.Changed("max-size") {
		cfg.Preprocess.MaxSize = *maxSize
	}
	if flags.Changed("format") {
		cfg.Output.Format = *format
	}
	if flags.Changed("color") {
		cfg.Output.Color = *rectColor
	}
	if flags.Changed("thickness") {
		cfg.Output.Thickness = *thickness
	}
	if flags.Changed("quality") {
		cfg.Output.Quality = *quality
	}
	if flags.Changed("lossless") {
		cfg.Output.Lossless = *lossless
	}

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration: %v", err)
	}
	logger.Tracef(ctx, "effective configuration:\n%s", spew.Sdump(cfg))

	if *saveConfig != "" {
		if err := config.SaveConfig(cfg, *saveConfig); err != nil {
			fatal("%v", err)
		}
		belt.Flush(ctx)
		return
	}

	if pflag.NArg() != 1 {
		pflag.Usage()
		belt.Flush(ctx)
		os.Exit(1)
	}

	cascade, err := lbpcascade.LoadFile(cfg.Detection.Classifier)
	if err != nil {
		fatal("could not load the classifier: %v", err)
	}
	logger.Debugf(ctx, "loaded %s: %dx%d window, %d stages, %d rectangles",
		cfg.Detection.Classifier, cascade.Width, cascade.Height, len(cascade.Stages), len(cascade.Rects))

	proc = lbpcascade.NewProcessor(cascade)
	proc.ScaleFactor = cfg.Detection.ScaleFactor
	proc.StepSize = cfg.Detection.StepSize
	proc.Workers = cfg.Detection.Workers
	proc.Equalize = cfg.Preprocess.Equalize
	proc.MaxSize = cfg.Preprocess.MaxSize
	proc.Format = cfg.Output.Format
	proc.RectColor = cfg.RectColor()
	proc.RefColor = cfg.ReferenceColor()
	proc.Thickness = cfg.Output.Thickness
	proc.Quality = cfg.Output.Quality
	proc.Lossless = cfg.Output.Lossless
	proc.IoUThreshold = cfg.Reference.IoUThreshold

	if cfg.Reference.Enabled {
		switch cfg.Reference.Kind {
		case lbpcascade.ReferencePigo:
			ref, err := lbpcascade.LoadPigoReference(cfg.Reference.Cascade)
			if err != nil {
				fatal("%v", err)
			}
			ref.MinSize = cfg.Reference.MinSize
			ref.MaxSize = cfg.Reference.MaxSize
			ref.ScaleFactor = cfg.Reference.ScaleFactor
			ref.ShiftFactor = cfg.Reference.ShiftFactor
			ref.MinQuality = float32(cfg.Reference.MinQuality)
			proc.Reference = ref
		case lbpcascade.ReferenceOpenCV:
			path := cfg.Reference.Cascade
			if path == "" {
				path = cfg.Detection.Classifier
			}
			ref, err := lbpcascade.NewOpenCVReference(path, cfg.Reference.ScaleFactor, cfg.Reference.MinSize, cfg.Reference.MaxSize)
			if err != nil {
				fatal("%v", err)
			}
			proc.Reference = ref
		}
	}

	// Show the progress indicator only on an interactive terminal.
	if term.IsTerminal(int(os.Stderr.Fd())) && cfg.Output.Dir != pipeName {
		spinnerText := fmt.Sprintf("%s %s",
			utils.DecorateText("⚡ LBPDETECT", utils.StatusMessage),
			utils.DecorateText("is scanning the image...", utils.DefaultMessage))
		proc.Spinner = utils.NewSpinner(spinnerText, time.Millisecond*200, true)
	}

	// Capture CTRL-C signal and cancel the running detections.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	err = proc.Execute(ctx, &lbpcascade.Ops{
		Src:      pflag.Arg(0),
		Dst:      cfg.Output.Dir,
		PipeName: pipeName,
		Workers:  cfg.Output.Workers,
	})
	cancel()
	if proc.Spinner != nil {
		proc.Spinner.RestoreCursor()
	}
	if err != nil {
		fatal("%v", err)
	}
	if err := proc.Close(); err != nil {
		logger.Warnf(ctx, "unable to release the reference detector: %v", err)
	}
	belt.Flush(ctx)
}
