// Package app provides application state, events and the background work
// that keeps it in sync with the screening service.
package app

import (
	"sync"

	"mri-viewer/internal/api"
)

// State holds the application state: the selected image, the latest
// prediction, the prediction history and the model list.
type State struct {
	mu sync.RWMutex

	// Selected image
	Source      string // Path, URL or data URI shown in the viewport
	SourceBytes []byte // Encoded bytes to upload for analysis (nil for remote history images)
	SourceName  string

	// Results
	Prediction *api.Prediction
	History    []api.Prediction
	Models     api.Models
	Analyzing  bool

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventImageSelected EventType = iota
	EventAnalysisStarted
	EventPredictionReady
	EventHistoryChanged
	EventModelsChanged
	EventError
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a new application state.
func NewState() *State {
	return &State{
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SelectImage makes source the current image and clears the previous
// prediction. data holds the encoded bytes when the image is local.
func (s *State) SelectImage(source, name string, data []byte) {
	s.mu.Lock()
	s.Source = source
	s.SourceName = name
	s.SourceBytes = data
	s.Prediction = nil
	s.mu.Unlock()
	s.Emit(EventImageSelected, source)
}

// ShowPrediction selects a stored prediction: its image becomes the current
// source and its result the current prediction.
func (s *State) ShowPrediction(p api.Prediction, imageURL string) {
	s.mu.Lock()
	s.Source = imageURL
	s.SourceName = p.ID
	s.SourceBytes = nil
	s.Prediction = &p
	s.mu.Unlock()
	s.Emit(EventImageSelected, imageURL)
	s.Emit(EventPredictionReady, p)
}

// CurrentImage returns the selected source, its display name and bytes.
func (s *State) CurrentImage() (source, name string, data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Source, s.SourceName, s.SourceBytes
}

// CurrentPrediction returns the prediction for the selected image, if any.
func (s *State) CurrentPrediction() (api.Prediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Prediction == nil {
		return api.Prediction{}, false
	}
	return *s.Prediction, true
}

// SetHistory replaces the history list.
func (s *State) SetHistory(items []api.Prediction) {
	s.mu.Lock()
	s.History = append([]api.Prediction(nil), items...)
	s.mu.Unlock()
	s.Emit(EventHistoryChanged, len(items))
}

// HistorySnapshot returns a copy of the history list.
func (s *State) HistorySnapshot() []api.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Prediction(nil), s.History...)
}

// SetModels replaces the model list.
func (s *State) SetModels(m api.Models) {
	s.mu.Lock()
	s.Models = m
	s.mu.Unlock()
	s.Emit(EventModelsChanged, m)
}

// ModelsSnapshot returns the model list.
func (s *State) ModelsSnapshot() api.Models {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Models
}

// IsAnalyzing reports whether a prediction request is in flight.
func (s *State) IsAnalyzing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Analyzing
}

// ReportError emits an error event.
func (s *State) ReportError(err error) {
	if err == nil {
		return
	}
	s.Emit(EventError, err)
}

// beginAnalysis marks an analysis in flight. It returns false if one is
// already running.
func (s *State) beginAnalysis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Analyzing {
		return false
	}
	s.Analyzing = true
	return true
}

// finishAnalysis records a completed prediction for source. The prediction
// is dropped if the user selected another image meanwhile. It is added to
// the history unless a refresh already brought it in.
func (s *State) finishAnalysis(source string, p *api.Prediction) bool {
	s.mu.Lock()
	s.Analyzing = false
	current := p != nil && s.Source == source
	if current {
		s.Prediction = p
		if !s.inHistory(p.ID) {
			s.History = append([]api.Prediction{*p}, s.History...)
		}
	}
	s.mu.Unlock()
	return current
}

func (s *State) inHistory(id string) bool {
	if id == "" {
		return false
	}
	for _, h := range s.History {
		if h.ID == id {
			return true
		}
	}
	return false
}
