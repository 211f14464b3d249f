package panels

import (
	"fmt"
	"sync"

	"mri-viewer/internal/api"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// HistoryPanel lists earlier predictions, newest first.
type HistoryPanel struct {
	mu    sync.RWMutex
	items []api.Prediction

	list      *widget.List
	empty     *widget.Label
	container *fyne.Container

	onSelect func(api.Prediction)
}

// NewHistoryPanel creates a history panel. onSelect runs when the user
// picks an entry.
func NewHistoryPanel(onSelect func(api.Prediction), onRefresh func()) *HistoryPanel {
	hp := &HistoryPanel{onSelect: onSelect}

	hp.list = widget.NewList(
		hp.length,
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(hp.ItemText(id))
		},
	)
	hp.list.OnSelected = func(id widget.ListItemID) {
		p, ok := hp.Item(id)
		if ok && hp.onSelect != nil {
			hp.onSelect(p)
		}
	}
	hp.empty = widget.NewLabel("No saved predictions")

	refreshBtn := widget.NewButton("Refresh", onRefresh)
	hp.container = container.NewBorder(refreshBtn, hp.empty, nil, nil, hp.list)
	return hp
}

// Container returns the panel container.
func (hp *HistoryPanel) Container() fyne.CanvasObject {
	return hp.container
}

// SetItems replaces the listed predictions.
func (hp *HistoryPanel) SetItems(items []api.Prediction) {
	hp.mu.Lock()
	hp.items = append([]api.Prediction(nil), items...)
	hp.mu.Unlock()

	if len(items) == 0 {
		hp.empty.Show()
	} else {
		hp.empty.Hide()
	}
	hp.list.UnselectAll()
	hp.list.Refresh()
}

// Item returns the prediction at index id.
func (hp *HistoryPanel) Item(id int) (api.Prediction, bool) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	if id < 0 || id >= len(hp.items) {
		return api.Prediction{}, false
	}
	return hp.items[id], true
}

// ItemText returns the list label for index id.
func (hp *HistoryPanel) ItemText(id int) string {
	p, ok := hp.Item(id)
	if !ok {
		return ""
	}
	when := "unknown time"
	if !p.Timestamp.IsZero() {
		when = p.Timestamp.Local().Format(timeLayout)
	}
	return fmt.Sprintf("%s  %s (%.0f%%)", when, p.Verdict(), p.Confidence*100)
}

func (hp *HistoryPanel) length() int {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return len(hp.items)
}
