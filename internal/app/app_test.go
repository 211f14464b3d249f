package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mri-viewer/internal/api"
	"mri-viewer/internal/viewport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu         sync.Mutex
	uploaded   []string
	predictErr error
	prediction api.Prediction
	history    []api.Prediction
	historyErr error
	models     api.Models
	switched   [2]string
	calls      atomic.Int32
	block      chan struct{}
}

func (f *fakeService) Predict(ctx context.Context, filename string, image io.Reader) (api.Prediction, error) {
	data, _ := io.ReadAll(image)
	f.mu.Lock()
	f.uploaded = append(f.uploaded, filename+":"+string(data))
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.prediction, f.predictErr
}

func (f *fakeService) History(ctx context.Context) ([]api.Prediction, error) {
	f.calls.Add(1)
	return f.history, f.historyErr
}

func (f *fakeService) Models(ctx context.Context) (api.Models, error) {
	return f.models, nil
}

func (f *fakeService) SwitchModel(ctx context.Context, name, version string) error {
	f.switched = [2]string{name, version}
	f.models.CurrentModel, f.models.CurrentVersion = name, version
	return nil
}

func record(s *State, events ...EventType) *[]EventType {
	var mu sync.Mutex
	seen := &[]EventType{}
	for _, e := range events {
		e := e
		s.On(e, func(interface{}) {
			mu.Lock()
			*seen = append(*seen, e)
			mu.Unlock()
		})
	}
	return seen
}

func TestSelectImageClearsPrediction(t *testing.T) {
	s := NewState()
	s.ShowPrediction(api.Prediction{ID: "old"}, "http://x/old.png")
	_, ok := s.CurrentPrediction()
	require.True(t, ok)

	var got string
	s.On(EventImageSelected, func(data interface{}) { got = data.(string) })
	s.SelectImage("/tmp/scan.png", "scan.png", []byte("png"))

	assert.Equal(t, "/tmp/scan.png", got)
	_, ok = s.CurrentPrediction()
	assert.False(t, ok)
	src, name, data := s.CurrentImage()
	assert.Equal(t, "/tmp/scan.png", src)
	assert.Equal(t, "scan.png", name)
	assert.Equal(t, []byte("png"), data)
}

func TestAnalyzeRecordsPrediction(t *testing.T) {
	s := NewState()
	s.SetHistory([]api.Prediction{{ID: "earlier"}})
	svc := &fakeService{prediction: api.Prediction{
		ID:       "p-1",
		HasTumor: true,
		Regions:  []viewport.AnnotationRegion{{X: 1, Y: 2, Width: 3, Height: 4}},
	}}
	a := NewAnalyzer(s, svc, time.Second)
	seen := record(s, EventAnalysisStarted, EventPredictionReady, EventHistoryChanged, EventError)

	s.SelectImage("/tmp/scan.jpg", "scan.jpg", []byte("jpeg"))
	p, err := a.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, []string{"scan.jpg:jpeg"}, svc.uploaded)
	assert.Equal(t, []EventType{EventAnalysisStarted, EventPredictionReady, EventHistoryChanged}, *seen)

	cur, ok := s.CurrentPrediction()
	require.True(t, ok)
	assert.Equal(t, "p-1", cur.ID)

	history := s.HistorySnapshot()
	require.Len(t, history, 2)
	assert.Equal(t, "p-1", history[0].ID, "new predictions are prepended")
	assert.False(t, s.IsAnalyzing())
}

func TestAnalyzeSkipsPredictionAlreadyInHistory(t *testing.T) {
	s := NewState()
	svc := &fakeService{prediction: api.Prediction{ID: "p-1"}, block: make(chan struct{})}
	a := NewAnalyzer(s, svc, 0)
	s.SelectImage("scan.png", "scan.png", []byte("png"))

	done := make(chan error, 1)
	go func() {
		_, err := a.Analyze(context.Background())
		done <- err
	}()
	require.Eventually(t, s.IsAnalyzing, time.Second, time.Millisecond)

	// A history refresh lands while the request is in flight and already
	// contains the saved prediction.
	s.SetHistory([]api.Prediction{{ID: "p-1"}, {ID: "earlier"}})
	close(svc.block)
	require.NoError(t, <-done)

	history := s.HistorySnapshot()
	require.Len(t, history, 2)
	assert.Equal(t, "p-1", history[0].ID)
	assert.Equal(t, "earlier", history[1].ID)

	cur, ok := s.CurrentPrediction()
	require.True(t, ok)
	assert.Equal(t, "p-1", cur.ID)
}

func TestAnalyzeWithoutImage(t *testing.T) {
	s := NewState()
	a := NewAnalyzer(s, &fakeService{}, 0)

	_, err := a.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)

	s.ShowPrediction(api.Prediction{ID: "remote"}, "http://x/remote.png")
	_, err = a.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoImage, "history images have no local bytes")
}

func TestAnalyzeFailureEmitsError(t *testing.T) {
	s := NewState()
	boom := errors.New("model not loaded")
	a := NewAnalyzer(s, &fakeService{predictErr: boom}, 0)

	var reported error
	s.On(EventError, func(data interface{}) { reported = data.(error) })
	s.SelectImage("scan.png", "scan.png", []byte("x"))

	_, err := a.Analyze(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reported, boom)
	assert.False(t, s.IsAnalyzing())
	assert.Empty(t, s.HistorySnapshot())
}

func TestAnalyzeBusyAndStaleSelection(t *testing.T) {
	s := NewState()
	svc := &fakeService{prediction: api.Prediction{ID: "late"}, block: make(chan struct{})}
	a := NewAnalyzer(s, svc, 0)
	s.SelectImage("first.png", "first.png", []byte("1"))

	done := make(chan error, 1)
	go func() {
		_, err := a.Analyze(context.Background())
		done <- err
	}()
	require.Eventually(t, s.IsAnalyzing, time.Second, time.Millisecond)

	_, err := a.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	s.SelectImage("second.png", "second.png", []byte("2"))
	close(svc.block)
	require.NoError(t, <-done)

	_, ok := s.CurrentPrediction()
	assert.False(t, ok, "a result for a replaced image is not shown")
	assert.Empty(t, s.HistorySnapshot())
}

func TestSwitchModelRefreshesModels(t *testing.T) {
	s := NewState()
	svc := &fakeService{models: api.Models{CurrentModel: "resnet", CurrentVersion: "v1"}}
	a := NewAnalyzer(s, svc, 0)

	var changed api.Models
	s.On(EventModelsChanged, func(data interface{}) { changed = data.(api.Models) })

	require.NoError(t, a.SwitchModel(context.Background(), "effnet", "v2"))
	assert.Equal(t, [2]string{"effnet", "v2"}, svc.switched)
	assert.Equal(t, "effnet", changed.CurrentModel)
	assert.Equal(t, "v2", s.ModelsSnapshot().CurrentVersion)
}

func TestPollerRefreshesHistory(t *testing.T) {
	s := NewState()
	svc := &fakeService{history: []api.Prediction{{ID: "a"}, {ID: "b"}}}
	p := NewPoller(NewAnalyzer(s, svc, 0), 5*time.Millisecond)
	require.NotNil(t, p)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool { return len(s.HistorySnapshot()) == 2 }, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()

	calls := svc.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, svc.calls.Load(), "no refresh after Stop")
}

func TestPollerReportsErrors(t *testing.T) {
	s := NewState()
	svc := &fakeService{historyErr: errors.New("offline")}
	p := NewPoller(NewAnalyzer(s, svc, 0), 5*time.Millisecond)

	errs := make(chan error, 8)
	p.OnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	p.Start()
	defer p.Stop()

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "offline")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}

func TestPollerDisabled(t *testing.T) {
	assert.Nil(t, NewPoller(nil, 0))
}
