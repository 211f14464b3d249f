// Package panels provides the side panels of the viewer window.
package panels

import (
	"fmt"

	"mri-viewer/internal/api"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const timeLayout = "2006-01-02 15:04"

// ResultsPanel shows the prediction for the current image.
type ResultsPanel struct {
	verdict    *widget.Label
	confidence *widget.Label
	percentage *widget.Label
	regions    *widget.Label
	model      *widget.Label
	timestamp  *widget.Label
	progress   *widget.ProgressBarInfinite
	analyzeBtn *widget.Button
	container  *fyne.Container

	// Heatmap overlay
	heatmap   *widget.Check
	opacity   *widget.Slider
	onHeatmap func(show bool, opacity float64)
}

// NewResultsPanel creates a results panel. onAnalyze runs when the user
// asks for analysis of the selected image; onHeatmap when the heatmap
// overlay is toggled or its opacity changes.
func NewResultsPanel(onAnalyze func(), onHeatmap func(show bool, opacity float64)) *ResultsPanel {
	rp := &ResultsPanel{
		verdict:    widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		confidence: widget.NewLabel(""),
		percentage: widget.NewLabel(""),
		regions:    widget.NewLabel(""),
		model:      widget.NewLabel(""),
		timestamp:  widget.NewLabel(""),
		progress:   widget.NewProgressBarInfinite(),
		analyzeBtn: widget.NewButton("Analyze", onAnalyze),
	}
	rp.progress.Stop()
	rp.progress.Hide()
	rp.analyzeBtn.Importance = widget.HighImportance

	rp.onHeatmap = onHeatmap
	rp.heatmap = widget.NewCheck("Show heatmap", func(bool) { rp.heatmapChanged() })
	rp.opacity = widget.NewSlider(0, 1)
	rp.opacity.Step = 0.05
	rp.opacity.Value = 0.5
	rp.opacity.OnChangeEnded = func(float64) { rp.heatmapChanged() }

	rp.container = container.NewVBox(
		rp.analyzeBtn,
		rp.progress,
		widget.NewSeparator(),
		rp.verdict,
		widget.NewForm(
			widget.NewFormItem("Confidence", rp.confidence),
			widget.NewFormItem("Tumor area", rp.percentage),
			widget.NewFormItem("Regions", rp.regions),
			widget.NewFormItem("Model", rp.model),
			widget.NewFormItem("Analyzed", rp.timestamp),
		),
		rp.heatmap,
		widget.NewForm(widget.NewFormItem("Opacity", rp.opacity)),
	)
	rp.Clear()
	return rp
}

// Container returns the panel container.
func (rp *ResultsPanel) Container() fyne.CanvasObject {
	return rp.container
}

// Show displays a prediction.
func (rp *ResultsPanel) Show(p api.Prediction) {
	rp.verdict.SetText(p.Verdict())
	rp.confidence.SetText(fmt.Sprintf("%.1f%%", p.Confidence*100))
	rp.percentage.SetText(fmt.Sprintf("%.2f%%", p.TumorPercentage))
	rp.regions.SetText(fmt.Sprintf("%d", len(p.Regions)))

	model := p.ModelName
	if p.ModelVersion != "" {
		model += " " + p.ModelVersion
	}
	if model == "" {
		model = "-"
	}
	rp.model.SetText(model)

	if p.Timestamp.IsZero() {
		rp.timestamp.SetText("-")
	} else {
		rp.timestamp.SetText(p.Timestamp.Local().Format(timeLayout))
	}

	rp.resetHeatmap()
	if p.HeatmapURL != "" {
		rp.heatmap.Enable()
	}
}

// Clear removes the displayed prediction.
func (rp *ResultsPanel) Clear() {
	rp.verdict.SetText("No analysis yet")
	for _, l := range []*widget.Label{rp.confidence, rp.percentage, rp.regions, rp.model, rp.timestamp} {
		l.SetText("-")
	}
	rp.resetHeatmap()
}

// SetOpacity sets the heatmap opacity without notifying.
func (rp *ResultsPanel) SetOpacity(v float64) {
	rp.opacity.Value = v
	rp.opacity.Refresh()
}

// resetHeatmap unchecks and disables the heatmap toggle without notifying.
func (rp *ResultsPanel) resetHeatmap() {
	onHeatmap := rp.onHeatmap
	rp.onHeatmap = nil
	rp.heatmap.SetChecked(false)
	rp.onHeatmap = onHeatmap
	rp.heatmap.Disable()
}

func (rp *ResultsPanel) heatmapChanged() {
	if rp.onHeatmap != nil {
		rp.onHeatmap(rp.heatmap.Checked, rp.opacity.Value)
	}
}

// SetBusy toggles the progress indicator and the analyze button.
func (rp *ResultsPanel) SetBusy(busy bool) {
	if busy {
		rp.analyzeBtn.Disable()
		rp.progress.Show()
		rp.progress.Start()
		return
	}
	rp.progress.Stop()
	rp.progress.Hide()
	rp.analyzeBtn.Enable()
}

// SetCanAnalyze enables the analyze button when a local image is selected.
func (rp *ResultsPanel) SetCanAnalyze(ok bool) {
	if ok {
		rp.analyzeBtn.Enable()
	} else {
		rp.analyzeBtn.Disable()
	}
}

// Verdict returns the displayed verdict text.
func (rp *ResultsPanel) Verdict() string {
	return rp.verdict.Text
}
