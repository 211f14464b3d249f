package panels

import (
	"strings"

	"mri-viewer/internal/api"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// ModelPanel lets the user choose the active model version.
type ModelPanel struct {
	sel       *widget.Select
	current   *widget.Label
	container *fyne.Container

	options  map[string][2]string
	updating bool
	onSwitch func(name, version string)
}

// NewModelPanel creates a model selector. onSwitch runs when the user picks
// a version other than the active one.
func NewModelPanel(onSwitch func(name, version string)) *ModelPanel {
	mp := &ModelPanel{
		current:  widget.NewLabel("Active model: unknown"),
		options:  make(map[string][2]string),
		onSwitch: onSwitch,
	}
	mp.sel = widget.NewSelect(nil, mp.selected)
	mp.sel.PlaceHolder = "Select model"
	mp.container = container.NewVBox(mp.current, mp.sel)
	return mp
}

// Container returns the panel container.
func (mp *ModelPanel) Container() fyne.CanvasObject {
	return mp.container
}

// SetModels updates the selectable versions.
func (mp *ModelPanel) SetModels(m api.Models) {
	mp.options = make(map[string][2]string)
	var labels []string
	for _, name := range m.Names() {
		for _, v := range m.Models[name] {
			label := optionLabel(name, v.Version)
			mp.options[label] = [2]string{name, v.Version}
			labels = append(labels, label)
		}
	}

	mp.updating = true
	mp.sel.Options = labels
	if m.CurrentModel != "" {
		mp.sel.SetSelected(optionLabel(m.CurrentModel, m.CurrentVersion))
		mp.current.SetText("Active model: " + optionLabel(m.CurrentModel, m.CurrentVersion))
	} else {
		mp.sel.ClearSelected()
		mp.current.SetText("Active model: unknown")
	}
	mp.updating = false
	mp.sel.Refresh()
}

// Options returns the selectable labels.
func (mp *ModelPanel) Options() []string {
	return mp.sel.Options
}

// Select picks a label as if the user chose it.
func (mp *ModelPanel) Select(label string) {
	mp.sel.SetSelected(label)
}

func (mp *ModelPanel) selected(label string) {
	if mp.updating || mp.onSwitch == nil {
		return
	}
	if opt, ok := mp.options[label]; ok {
		mp.onSwitch(opt[0], opt[1])
	}
}

func optionLabel(name, version string) string {
	return strings.TrimSpace(name + " " + version)
}
