// GoPoster - Training camp certificate posters.
//
// Usage:
//
//	goposter render -form <file> [-o <dir>]
//	goposter watch -form <file> -preview <png>
//	goposter serve [-addr :8080] [-open]
//	goposter tui [-o <dir>]
//	goposter schema
//	goposter init
//	goposter blank -o <file> [--color <hex>]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/xob0t/GoPoster/clients/server"
	"github.com/xob0t/GoPoster/clients/tui"
	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/export"
	"github.com/xob0t/GoPoster/pkg/generator"
	"github.com/xob0t/GoPoster/pkg/logger"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "tui":
		err = runTUI(ctx, os.Args[2:])
	case "schema":
		err = runSchema(ctx, os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "blank":
		err = runBlank(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

// templateFlags are shared by every command that loads the template.
type templateFlags struct {
	template string
	font     string
}

func (t *templateFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&t.template, "template", "", "Path to .gspresets bundle or preset JSON (default: embedded)")
	fs.StringVar(&t.font, "font", "", "TTF font with CJK glyphs")
}

// setup loads the config, applies flag overrides and starts logging to w.
func (t *templateFlags) setup(ctx context.Context, w io.Writer) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if t.template != "" {
		cfg.Template = t.template
	}
	if t.font != "" {
		cfg.FontPath = t.font
	}
	if err := logger.InitWithWriter(w); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var (
		tf       templateFlags
		formPath string
		outDir   string
	)
	tf.register(fs)
	fs.StringVar(&formPath, "form", "", "Form values (YAML or JSON)")
	fs.StringVar(&outDir, "o", "", "Output directory (default: output_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if formPath == "" {
		return fmt.Errorf("-form is required")
	}

	cfg, err := tf.setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = cfg.OutputDir
	}

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	warnFont(rt)

	path, err := renderForm(ctx, rt, formPath, outDir)
	if err != nil {
		return err
	}
	fmt.Printf("Done: %s\n", path)
	return nil
}

// renderForm exports the poster for one form file and returns its path.
func renderForm(ctx context.Context, rt *app.Runtime, formPath, outDir string) (string, error) {
	form, err := loadForm(formPath)
	if err != nil {
		return "", err
	}

	sess := rt.NewSession()
	defer sess.Close()
	if err := form.apply(ctx, sess); err != nil {
		return "", err
	}

	saver := export.DirSaver{Dir: outDir}
	task, err := sess.Submit(ctx, saver)
	if err != nil {
		printProblems(err)
		return "", err
	}
	if err := task.Wait(ctx); err != nil {
		return "", err
	}
	return saver.PathFor(task.FileName), nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var (
		tf          templateFlags
		formPath    string
		previewPath string
	)
	tf.register(fs)
	fs.StringVar(&formPath, "form", "", "Form values to watch (YAML or JSON)")
	fs.StringVar(&previewPath, "preview", "preview.png", "Preview output (.png or .jpg)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if formPath == "" {
		return fmt.Errorf("-form is required")
	}
	if !generator.Supported(previewExt(previewPath)) {
		return fmt.Errorf("%w: %s", generator.ErrUnsupportedFormat, previewPath)
	}

	cfg, err := tf.setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	warnFont(rt)

	w := &watcher{rt: rt, formPath: formPath, previewPath: previewPath, debounce: 300 * time.Millisecond}
	fmt.Printf("Watching %s → %s (Ctrl+C to stop)\n", formPath, previewPath)
	return w.run(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		tf   templateFlags
		addr string
		open bool
	)
	tf.register(fs)
	fs.StringVar(&addr, "addr", "", "Listen address (default: addr)")
	fs.BoolVar(&open, "open", false, "Open the editor in a browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := tf.setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	cfg.OpenBrowser = cfg.OpenBrowser || open

	rt, err := app.NewRuntime(ctx, cfg, app.WithRuntimeMetrics(app.NewMetrics(cfg)))
	if err != nil {
		return err
	}
	defer rt.Close()
	warnFont(rt)
	return server.Run(ctx, rt)
}

func runTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	var (
		tf      templateFlags
		outDir  string
		logPath string
	)
	tf.register(fs)
	fs.StringVar(&outDir, "o", "", "Output directory (default: output_dir)")
	fs.StringVar(&logPath, "log", "", "Write logs to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The terminal is drawn on; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	cfg, err := tf.setup(ctx, logOut)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = cfg.OutputDir
	}

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := rt.NewSession()
	defer sess.Close()
	return tui.Run(ctx, sess, outDir)
}

func runSchema(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	var tf templateFlags
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := tf.setup(ctx, io.Discard)
	if err != nil {
		return err
	}
	preset, cleanup, err := template.Load(cfg.Template)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	defer cleanup()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tLABEL\tKIND\tRANGE")
	for _, spec := range poster.Schema {
		rng := ""
		if spec.Kind == "number" {
			rng = fmt.Sprintf("%d-%d", spec.Min, spec.Max)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Field, spec.Label, spec.Kind, rng)
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", avatarKey, "头像文件路径", "path", "")
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(template.FormatPreset(preset))
	for _, w := range template.ValidatePreset(preset) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var presetOut, formOut string
	fs.StringVar(&presetOut, "preset", "preset.json", "Output path for the sample template")
	fs.StringVar(&formOut, "form", "form.yaml", "Output path for the sample form")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, f := template.GetExamples()
	if err := os.WriteFile(presetOut, []byte(p), 0o644); err != nil {
		return fmt.Errorf("write preset: %w", err)
	}
	if err := os.WriteFile(formOut, []byte(f), 0o644); err != nil {
		return fmt.Errorf("write form: %w", err)
	}

	fmt.Printf("Created: %s, %s\n", presetOut, formOut)
	fmt.Printf("Run: goposter render -template %s -form %s\n", presetOut, formOut)
	return nil
}

// runBlank writes a solid-colour image, handy as a template background.
func runBlank(args []string) error {
	fs := flag.NewFlagSet("blank", flag.ExitOnError)
	var (
		output        string
		color         string
		width, height int
	)
	fs.StringVar(&output, "o", "", "Output file (.png or .jpg)")
	fs.StringVar(&color, "color", "#ffffff", "Background color: hex or 'random'")
	fs.IntVar(&width, "w", 750, "Width in pixels")
	fs.IntVar(&height, "h", 1000, "Height in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("output file is required (-o)")
	}

	if err := generator.Generate(output, generator.Config{Width: width, Height: height, Color: color}); err != nil {
		return err
	}
	fmt.Printf("Done: %s\n", output)
	return nil
}

// printProblems lists validation messages the way the form shows them.
func printProblems(err error) {
	var ve *poster.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	for _, p := range ve.Problems {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", p.Field, p.Message)
	}
}

// warnFont tells the user when the poster text would draw as empty boxes.
func warnFont(rt *app.Runtime) {
	if len(rt.MissingGlyphs) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: the font cannot draw %q; pass -font with a CJK TTF or set font_path\n",
		string(rt.MissingGlyphs))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`GoPoster - Training Camp Certificate Posters

USAGE:
    goposter render -form <file> [-o <dir>]
    goposter watch -form <file> [-preview preview.png]
    goposter serve [-addr :8080] [-open]
    goposter tui [-o <dir>] [-log <file>]
    goposter schema
    goposter init [-preset preset.json] [-form form.yaml]
    goposter blank -o <file> [-color <hex>] [-w 750] [-h 1000]

TEMPLATE OPTIONS (render, watch, serve, tui, schema):
    -template <path>       .gspresets bundle or preset JSON (default: embedded)
    -font <path>           TTF font with CJK glyphs

CONFIG:
    GOPOSTER_CONFIG        YAML config file
    GOPOSTER_<KEY>         Override any key, e.g. GOPOSTER_JPEG_QUALITY=85

EXAMPLES:
    goposter init
    goposter render -form form.yaml -o out
    goposter watch -form form.yaml -preview preview.png
    goposter serve -open
    goposter blank -o bg.png -color "#fdf6e3"
`)
}
