package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"mri-viewer/internal/api"
)

// ErrNoImage is returned when analysis is requested before an uploadable
// image is selected.
var ErrNoImage = errors.New("no local image selected")

// ErrBusy is returned when an analysis is already running.
var ErrBusy = errors.New("analysis already in progress")

// Service is the part of the screening API the application drives.
type Service interface {
	Predict(ctx context.Context, filename string, image io.Reader) (api.Prediction, error)
	History(ctx context.Context) ([]api.Prediction, error)
	Models(ctx context.Context) (api.Models, error)
	SwitchModel(ctx context.Context, name, version string) error
}

// Analyzer submits the selected image for prediction and keeps the history
// and model list in the application state.
type Analyzer struct {
	state   *State
	service Service
	timeout time.Duration
}

// NewAnalyzer creates an analyzer. A zero timeout means no per-request limit
// beyond the client's own.
func NewAnalyzer(state *State, service Service, timeout time.Duration) *Analyzer {
	return &Analyzer{state: state, service: service, timeout: timeout}
}

func (a *Analyzer) context(parent context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(parent, a.timeout)
	}
	return context.WithCancel(parent)
}

// Analyze uploads the selected image and records the prediction. It blocks
// until the service answers; callers on the UI thread should run it in a
// goroutine. Listeners receive EventAnalysisStarted, then either
// EventPredictionReady and EventHistoryChanged, or EventError.
func (a *Analyzer) Analyze(ctx context.Context) (api.Prediction, error) {
	source, name, data := a.state.CurrentImage()
	if len(data) == 0 {
		return api.Prediction{}, ErrNoImage
	}
	if !a.state.beginAnalysis() {
		return api.Prediction{}, ErrBusy
	}
	a.state.Emit(EventAnalysisStarted, source)

	ctx, cancel := a.context(ctx)
	defer cancel()

	start := time.Now()
	p, err := a.service.Predict(ctx, name, bytes.NewReader(data))
	if err != nil {
		a.state.finishAnalysis(source, nil)
		err = fmt.Errorf("analyzing %s: %w", name, err)
		log.Printf("[app] %v", err)
		a.state.ReportError(err)
		return api.Prediction{}, err
	}
	log.Printf("[app] %s analyzed in %v: %s (%.1f%%, %d regions)",
		name, time.Since(start).Round(time.Millisecond), p.Verdict(), p.Confidence*100, len(p.Regions))

	if !a.state.finishAnalysis(source, &p) {
		log.Printf("[app] selection changed during analysis of %s, result not shown", name)
		return p, nil
	}
	a.state.Emit(EventPredictionReady, p)
	a.state.Emit(EventHistoryChanged, len(a.state.HistorySnapshot()))
	return p, nil
}

// RefreshHistory reloads the prediction history.
func (a *Analyzer) RefreshHistory(ctx context.Context) error {
	ctx, cancel := a.context(ctx)
	defer cancel()

	items, err := a.service.History(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	a.state.SetHistory(items)
	return nil
}

// RefreshModels reloads the available models.
func (a *Analyzer) RefreshModels(ctx context.Context) error {
	ctx, cancel := a.context(ctx)
	defer cancel()

	m, err := a.service.Models(ctx)
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	a.state.SetModels(m)
	return nil
}

// SwitchModel activates a model version and reloads the model list.
func (a *Analyzer) SwitchModel(ctx context.Context, name, version string) error {
	ctx, cancel := a.context(ctx)
	defer cancel()

	if err := a.service.SwitchModel(ctx, name, version); err != nil {
		err = fmt.Errorf("switching to %s %s: %w", name, version, err)
		a.state.ReportError(err)
		return err
	}
	log.Printf("[app] switched model to %s %s", name, version)
	if err := a.RefreshModels(ctx); err != nil {
		a.state.ReportError(err)
		return err
	}
	return nil
}
