// Command viewportrender renders a scan with its annotation regions to a PNG
// without opening a window.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mri-viewer/internal/api"
	"mri-viewer/internal/config"
	"mri-viewer/internal/viewport"
	"mri-viewer/pkg/geometry"
)

type options struct {
	image      string
	regions    string
	prediction string
	apiURL     string
	configPath string
	out        string
	width      int
	height     int
	zoom       float64
	pan        string
	trace      bool
	timeout    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.image, "image", "", "Image path, URL or data URI")
	flag.StringVar(&opts.regions, "regions", "", "Regions as a JSON array, or @file to read them from a file")
	flag.StringVar(&opts.prediction, "prediction", "", "Render a stored prediction by ID (image and regions come from the service)")
	flag.StringVar(&opts.apiURL, "api", "", "Service base URL for -prediction (default from MRI_API_URL)")
	flag.StringVar(&opts.configPath, "config", "", "YAML settings file for size, colors and interpolation")
	flag.StringVar(&opts.out, "out", "frame.png", "Output PNG path")
	flag.IntVar(&opts.width, "width", 0, "Surface width in pixels (default from config)")
	flag.IntVar(&opts.height, "height", 0, "Surface height in pixels (default from config)")
	flag.Float64Var(&opts.zoom, "zoom", 1, "Zoom factor, clamped to [0.5, 5]")
	flag.StringVar(&opts.pan, "pan", "0,0", "Pan offset in surface pixels as x,y")
	flag.BoolVar(&opts.trace, "trace", false, "Print the draw calls")
	flag.DurationVar(&opts.timeout, "timeout", time.Minute, "Load timeout")
	flag.Parse()

	if opts.image == "" && opts.prediction == "" {
		fmt.Println("Usage: viewportrender -image <source> [-regions json|@file] [-zoom 1.5] [-pan x,y] [-out frame.png] [-trace]")
		fmt.Println("       viewportrender -prediction <id> [-api http://localhost:5000]")
		os.Exit(1)
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "viewportrender: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.apiURL != "" {
		cfg.APIURL = opts.apiURL
	}
	width, height := cfg.Viewport.Width, cfg.Viewport.Height
	if opts.width > 0 {
		width = opts.width
	}
	if opts.height > 0 {
		height = opts.height
	}
	style, err := cfg.Viewport.Style()
	if err != nil {
		return err
	}
	interp, err := viewport.ParseInterpolator(cfg.Viewport.Interpolator)
	if err != nil {
		return err
	}
	pan, err := parsePoint(opts.pan)
	if err != nil {
		return fmt.Errorf("-pan: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	source := opts.image
	var regions []viewport.AnnotationRegion
	if opts.prediction != "" {
		source, regions, err = fetchPrediction(ctx, cfg, opts.prediction)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Prediction %s: %d regions\n", opts.prediction, len(regions))
	}
	if opts.regions != "" {
		regions, err = parseRegions(opts.regions)
		if err != nil {
			return fmt.Errorf("-regions: %w", err)
		}
	}

	vp := viewport.New(viewport.WithStyle(style))
	defer vp.Close()

	res := <-vp.LoadImage(ctx, source)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(stdout, "Loaded %dx%d image\n", res.Width, res.Height)

	vp.SetAnnotations(regions)
	vp.SetZoom(opts.zoom)
	vp.PanBy(pan)

	surface := viewport.NewRasterSurface(width, height)
	surface.Interpolator = interp
	stats := vp.Render(surface)
	fmt.Fprintf(stdout, "Rendered %dx%d at zoom %.2f: %d regions drawn, %d skipped\n",
		width, height, vp.Zoom(), stats.Regions, stats.Skipped)

	if opts.trace {
		rec := viewport.NewRecorder(float64(width), float64(height))
		vp.Render(rec)
		if _, err := rec.WriteTo(stdout); err != nil {
			return err
		}
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if err := png.Encode(f, surface.Image()); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", opts.out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", opts.out)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func fetchPrediction(ctx context.Context, cfg *config.Config, id string) (string, []viewport.AnnotationRegion, error) {
	client, err := api.NewClient(cfg.APIURL, cfg.RequestTimeout)
	if err != nil {
		return "", nil, err
	}
	p, err := client.Prediction(ctx, id)
	if err != nil {
		return "", nil, err
	}
	imageURL := p.ImageURL
	if imageURL == "" {
		imageURL = client.PredictionImageURL(id)
	}
	return client.ResolveURL(imageURL), p.Regions, nil
}

// parseRegions reads a JSON array of regions, inline or from @file.
func parseRegions(arg string) ([]viewport.AnnotationRegion, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	var regions []viewport.AnnotationRegion
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func parsePoint(s string) (geometry.Point2D, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return geometry.Point2D{}, errors.New("expected x,y")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return geometry.Point2D{}, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return geometry.Point2D{}, err
	}
	return geometry.NewPoint2D(x, y), nil
}
