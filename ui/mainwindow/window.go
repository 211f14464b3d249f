// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"mri-viewer/internal/api"
	"mri-viewer/internal/app"
	"mri-viewer/internal/config"
	"mri-viewer/internal/overlay"
	view "mri-viewer/internal/viewport"
	"mri-viewer/internal/version"
	"mri-viewer/pkg/geometry"
	"mri-viewer/ui/panels"
	"mri-viewer/ui/prefs"
	uiviewport "mri-viewer/ui/viewport"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const appTitle = "MRI Viewer"

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app      fyne.App
	state    *app.State
	client   *api.Client
	analyzer *app.Analyzer
	poller   *app.Poller
	prefs    *prefs.Prefs
	cfgPath  string

	ctx    context.Context
	cancel context.CancelFunc

	viewer    *uiviewport.ImageViewport
	heatmap   *heatmapView
	results   *panels.ResultsPanel
	history   *panels.HistoryPanel
	models    *panels.ModelPanel
	split     *container.Split
	statusBar *widget.Label
}

// New creates the main window.
func New(fyneApp fyne.App, cfg *config.Config, client *api.Client, p *prefs.Prefs) (*MainWindow, error) {
	style, err := cfg.Viewport.Style()
	if err != nil {
		return nil, err
	}
	interp, err := view.ParseInterpolator(cfg.Viewport.Interpolator)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := app.NewState()
	analyzer := app.NewAnalyzer(state, client, cfg.RequestTimeout)

	mw := &MainWindow{
		Window:   fyneApp.NewWindow(fmt.Sprintf("%s %s", appTitle, version.Version)),
		app:      fyneApp,
		state:    state,
		client:   client,
		analyzer: analyzer,
		poller:   app.NewPoller(analyzer, cfg.HistoryPollInterval),
		prefs:    p,
		cfgPath:  cfg.Path,
		ctx:      ctx,
		cancel:   cancel,
	}

	blend, err := overlay.ParseBlendMode(cfg.Viewport.HeatmapBlend)
	if err != nil {
		return nil, err
	}

	loader := view.NewLoader(client.HTTPClient())
	vp := view.New(view.WithLoader(loader), view.WithStyle(style))
	minSize := fyne.NewSize(float32(cfg.Viewport.Width), float32(cfg.Viewport.Height))
	mw.viewer = uiviewport.NewImageViewport(vp, minSize, interp)
	mw.heatmap = newHeatmapView(vp, loader, blend)

	mw.setupUI()
	mw.results.SetOpacity(cfg.Viewport.HeatmapOpacity)
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.SetOnClosed(mw.shutdown)

	return mw, nil
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.results = panels.NewResultsPanel(mw.onAnalyze, mw.onHeatmap)
	mw.results.SetCanAnalyze(false)
	mw.history = panels.NewHistoryPanel(mw.onHistorySelected, mw.onRefreshHistory)
	mw.models = panels.NewModelPanel(mw.onSwitchModel)
	mw.statusBar = widget.NewLabel("Ready")

	mw.viewer.OnPointer(func(p geometry.Point2D, ok bool) {
		if ok {
			mw.updateStatus(fmt.Sprintf("x=%.0f y=%.0f", p.X, p.Y))
		}
	})

	side := container.NewAppTabs(
		container.NewTabItem("Result", container.NewVBox(mw.results.Container(), widget.NewSeparator(), mw.models.Container())),
		container.NewTabItem("History", mw.history.Container()),
	)

	mw.split = container.NewHSplit(side, mw.viewer)
	mw.split.SetOffset(mw.prefs.FloatWithFallback(prefs.KeySplitOffset, 0.3))

	content := container.NewBorder(
		nil,
		container.NewPadded(mw.statusBar),
		nil,
		nil,
		mw.split,
	)
	mw.SetContent(content)

	w := mw.prefs.FloatWithFallback(prefs.KeyWindowW, 1100)
	h := mw.prefs.FloatWithFallback(prefs.KeyWindowH, 760)
	mw.Resize(fyne.NewSize(float32(w), float32(h)))
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", mw.onOpenImage),
		fyne.NewMenuItem("Open URL...", mw.onOpenURL),
	)

	vp := mw.viewer.Viewport()
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", vp.ZoomIn),
		fyne.NewMenuItem("Zoom Out", vp.ZoomOut),
		fyne.NewMenuItem("Reset View", vp.ResetView),
	)

	analysisMenu := fyne.NewMenu("Analysis",
		fyne.NewMenuItem("Analyze Image", mw.onAnalyze),
		fyne.NewMenuItem("Refresh History", mw.onRefreshHistory),
		fyne.NewMenuItem("Reload Models", mw.onRefreshModels),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, analysisMenu, helpMenu))
}

// setupEventHandlers registers for application events.
func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventImageSelected, func(data interface{}) {
		source, _ := data.(string)
		_, name, bytes := mw.state.CurrentImage()
		mw.results.Clear()
		mw.results.SetCanAnalyze(len(bytes) > 0)
		mw.heatmap.Reset()
		mw.viewer.SetAnnotations(nil)
		mw.SetTitle(fmt.Sprintf("%s - %s", appTitle, name))
		mw.loadImage(source)
	})

	mw.state.On(app.EventAnalysisStarted, func(data interface{}) {
		mw.results.SetBusy(true)
		mw.updateStatus("Analyzing...")
	})

	mw.state.On(app.EventPredictionReady, func(data interface{}) {
		p, ok := data.(api.Prediction)
		if !ok {
			return
		}
		mw.results.Show(p)
		mw.viewer.SetAnnotations(p.Regions)
		mw.updateStatus(fmt.Sprintf("%s (%.1f%% confidence)", p.Verdict(), p.Confidence*100))
	})

	mw.state.On(app.EventHistoryChanged, func(data interface{}) {
		mw.history.SetItems(mw.state.HistorySnapshot())
	})

	mw.state.On(app.EventModelsChanged, func(data interface{}) {
		mw.models.SetModels(mw.state.ModelsSnapshot())
	})

	mw.state.On(app.EventError, func(data interface{}) {
		if err, ok := data.(error); ok {
			mw.updateStatus("Error: " + err.Error())
			dialog.ShowError(err, mw.Window)
		}
	})

	if mw.poller != nil {
		mw.poller.OnError(func(err error) {
			mw.updateStatus("History refresh failed: " + err.Error())
		})
	}
}

// Start fetches the history and model list and begins polling.
func (mw *MainWindow) Start() {
	go func() {
		if err := mw.analyzer.RefreshHistory(mw.ctx); err != nil {
			log.Printf("[ui] %v", err)
			mw.updateStatus("Service unavailable: " + err.Error())
		}
		if err := mw.analyzer.RefreshModels(mw.ctx); err != nil {
			log.Printf("[ui] %v", err)
		}
	}()
	if mw.poller != nil {
		mw.poller.Start()
	}
	if mw.cfgPath != "" {
		err := config.Watch(mw.ctx, mw.cfgPath, mw.applyConfig, func(err error) {
			log.Printf("[config] reload: %v", err)
			mw.updateStatus("Settings not reloaded: " + err.Error())
		})
		if err != nil {
			log.Printf("[config] %v", err)
		}
	}
	if last := mw.prefs.String(prefs.KeyLastImage); last != "" {
		mw.openLocal(last)
	}
}

// OpenSource shows an image given on the command line. Local files can be
// analyzed; URLs are display only.
func (mw *MainWindow) OpenSource(source string) {
	if isRemote(source) {
		mw.state.SelectImage(source, filepath.Base(source), nil)
		return
	}
	mw.openLocal(source)
}

// applyConfig takes over the settings that can change while running: the
// region style and the heatmap opacity.
func (mw *MainWindow) applyConfig(cfg *config.Config) {
	style, err := cfg.Viewport.Style()
	if err != nil {
		return
	}
	mw.viewer.Viewport().SetStyle(style)
	mw.results.SetOpacity(cfg.Viewport.HeatmapOpacity)
	log.Printf("[config] reloaded %s", cfg.Path)
	mw.updateStatus("Settings reloaded")
}

func (mw *MainWindow) shutdown() {
	if mw.poller != nil {
		mw.poller.Stop()
	}
	mw.cancel()

	size := mw.Canvas().Size()
	mw.prefs.SetFloat(prefs.KeyWindowW, float64(size.Width))
	mw.prefs.SetFloat(prefs.KeyWindowH, float64(size.Height))
	mw.prefs.SetFloat(prefs.KeySplitOffset, mw.split.Offset)
	if err := mw.prefs.SaveIfChanged(); err != nil {
		log.Printf("[ui] saving preferences: %v", err)
	}
	mw.viewer.Close()
}

func (mw *MainWindow) loadImage(source string) {
	ch := mw.viewer.Load(mw.ctx, source)
	mw.updateStatus("Loading image...")
	go func() {
		res := <-ch
		switch {
		case errors.Is(res.Err, view.ErrSuperseded), errors.Is(res.Err, view.ErrClosed):
		case res.Err != nil:
			log.Printf("[ui] %v", res.Err)
			mw.updateStatus("Could not load image: " + res.Err.Error())
		default:
			mw.updateStatus(fmt.Sprintf("Loaded %dx%d image", res.Width, res.Height))
		}
	}()
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.prefs.String(prefs.KeyLastDir)
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

// Menu and panel action handlers

func (mw *MainWindow) onOpenImage() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		data, err := io.ReadAll(io.LimitReader(reader, view.DefaultMaxBytes+1))
		if err != nil {
			dialog.ShowError(err, mw.Window)
			return
		}
		if len(data) > view.DefaultMaxBytes {
			dialog.ShowError(fmt.Errorf("%s is larger than %d MiB", reader.URI().Name(), view.DefaultMaxBytes>>20), mw.Window)
			return
		}
		path := reader.URI().Path()
		mw.prefs.SetString(prefs.KeyLastDir, filepath.Dir(path))
		mw.prefs.SetString(prefs.KeyLastImage, path)
		mw.state.SelectImage(path, reader.URI().Name(), data)
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(imageExtensions))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (mw *MainWindow) onOpenURL() {
	entry := widget.NewEntry()
	entry.SetPlaceHolder("https://...")
	dialog.ShowForm("Open URL", "Open", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("URL", entry)},
		func(ok bool) {
			if ok && entry.Text != "" {
				mw.OpenSource(entry.Text)
			}
		}, mw.Window)
}

func (mw *MainWindow) openLocal(path string) {
	uri := storage.NewFileURI(path)
	reader, err := storage.Reader(uri)
	if err != nil {
		log.Printf("[ui] opening %s: %v", path, err)
		mw.updateStatus("Could not open " + path)
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, view.DefaultMaxBytes+1))
	if err != nil || len(data) > view.DefaultMaxBytes {
		mw.updateStatus("Could not read " + path)
		return
	}
	mw.state.SelectImage(path, uri.Name(), data)
}

func (mw *MainWindow) onAnalyze() {
	go func() {
		_, err := mw.analyzer.Analyze(mw.ctx)
		if errors.Is(err, app.ErrBusy) {
			mw.updateStatus("Analysis already running")
			return
		}
		_, _, data := mw.state.CurrentImage()
		mw.results.SetBusy(false)
		mw.results.SetCanAnalyze(len(data) > 0)
		if errors.Is(err, app.ErrNoImage) {
			mw.updateStatus("Open an image file to analyze")
		}
	}()
}

func (mw *MainWindow) onHeatmap(show bool, opacity float64) {
	if !show {
		mw.heatmap.Hide()
		return
	}
	p, ok := mw.state.CurrentPrediction()
	if !ok || p.HeatmapURL == "" {
		return
	}
	url := mw.client.ResolveURL(p.HeatmapURL)
	source, _, _ := mw.state.CurrentImage()
	go func() {
		if err := mw.heatmap.Show(mw.ctx, source, url, opacity); err != nil {
			log.Printf("[ui] heatmap: %v", err)
			mw.updateStatus("Could not load heatmap: " + err.Error())
		}
	}()
}

func (mw *MainWindow) onHistorySelected(p api.Prediction) {
	imageURL := p.ImageURL
	if imageURL == "" {
		imageURL = mw.client.PredictionImageURL(p.ID)
	}
	mw.state.ShowPrediction(p, mw.client.ResolveURL(imageURL))
}

func (mw *MainWindow) onRefreshHistory() {
	go func() {
		if err := mw.analyzer.RefreshHistory(mw.ctx); err != nil {
			mw.state.ReportError(err)
		}
	}()
}

func (mw *MainWindow) onRefreshModels() {
	go func() {
		if err := mw.analyzer.RefreshModels(mw.ctx); err != nil {
			mw.state.ReportError(err)
		}
	}()
}

func (mw *MainWindow) onSwitchModel(name, ver string) {
	go func() {
		if err := mw.analyzer.SwitchModel(mw.ctx, name, ver); err == nil {
			mw.updateStatus(fmt.Sprintf("Active model: %s %s", name, ver))
		}
	}()
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+appTitle,
		fmt.Sprintf("%s v%s\n\n"+
			"Brain MRI screening viewer.\n\n"+
			"Service: %s\n"+
			"Built: %s\n"+
			"Commit: %s",
			appTitle, version.Version, mw.client.BaseURL(), version.BuildTime, version.GitCommit),
		mw.Window)
}

func isRemote(source string) bool {
	for _, prefix := range []string{"http://", "https://", "data:"} {
		if strings.HasPrefix(strings.ToLower(source), prefix) {
			return true
		}
	}
	return false
}
