// Package dashboard renders a live terminal view of a running benchmark.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/pktbench/internal/metrics"
)

// maxSparkPoints bounds how many iterations each sparkline shows.
const maxSparkPoints = 100

// RunConfig holds the run parameters shown in the summary panel.
type RunConfig struct {
	TxInterface         string
	RxInterface         string
	PacketSize          int
	PacketsPerIteration int
	Iterations          int // requested
	ParallelID          *int
	OnFailure           string
	Retries             int
	Interval            time.Duration
	ConfigFile          string
}

// Dashboard renders a live terminal UI for benchmark metrics.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid        *ui.Grid
	rateSpark   *widgets.SparklineGroup
	batchSpark  *widgets.SparklineGroup
	progress    *widgets.Gauge
	errorList   *widgets.List
	summaryPara *widgets.Paragraph
	metricsPara *widgets.Paragraph
	startTime   time.Time
	runDuration time.Duration
	runConfig   RunConfig
}

// New initializes the terminal and builds the widgets. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:    collector,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
		runConfig:    cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	pps := widgets.NewSparkline()
	pps.Title = "packets/sec"
	pps.LineColor = ui.ColorGreen
	pps.Data = []float64{0}

	bps := widgets.NewSparkline()
	bps.Title = "bits/sec"
	bps.LineColor = ui.ColorBlue
	bps.Data = []float64{0}

	d.rateSpark = widgets.NewSparklineGroup(pps, bps)
	d.rateSpark.Title = "Rate per Iteration"
	d.rateSpark.BorderStyle.Fg = ui.ColorCyan

	batch := widgets.NewSparkline()
	batch.Title = "packets per batch"
	batch.LineColor = ui.ColorYellow
	batch.Data = []float64{0}

	d.batchSpark = widgets.NewSparklineGroup(batch)
	d.batchSpark.Title = "Average Batch"
	d.batchSpark.BorderStyle.Fg = ui.ColorCyan

	d.progress = widgets.NewGauge()
	d.progress.Title = "Iterations"
	d.progress.Percent = 0
	d.progress.BarColor = ui.ColorBlue
	d.progress.BorderStyle.Fg = ui.ColorCyan
	d.progress.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "pkt-gen Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for the first iteration..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(1.0, d.progress),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.6, d.rateSpark),
			ui.NewCol(0.4, d.metricsPara),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.6, d.batchSpark),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.runDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() metrics.Stats {
	return d.collector.Stats(d.runDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	d.updateSparklines(d.collector.History())
	d.updateProgress(stats)

	d.summaryPara.Text = fmt.Sprintf("%s\n%s\nElapsed: %s",
		d.formatRunParams(),
		d.formatRunOptions(),
		elapsed.Round(time.Second),
	)

	if stats.Iterations == 0 {
		d.metricsPara.Text = "Waiting for the first iteration..."
	} else {
		d.metricsPara.Text = fmt.Sprintf(
			"Packet rate:  %s mean\n              %s / %s min/max\nThroughput:   %s mean\n              %s / %s min/max\nAvg batch:    %.2f mean",
			metrics.FormatRate(stats.PacketRate.Mean, "pps"),
			metrics.FormatRate(stats.PacketRate.Min, "pps"),
			metrics.FormatRate(stats.PacketRate.Max, "pps"),
			metrics.FormatRate(stats.BitRate.Mean, "bps"),
			metrics.FormatRate(stats.BitRate.Min, "bps"),
			metrics.FormatRate(stats.BitRate.Max, "bps"),
			stats.AverageBatch.Mean,
		)
	}

	d.errorList.Rows = formatErrorRows(stats.Errors)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func (d *Dashboard) updateSparklines(history []metrics.DataPoint) {
	if len(history) == 0 {
		return
	}
	if len(history) > maxSparkPoints {
		history = history[len(history)-maxSparkPoints:]
	}
	pps := make([]float64, len(history))
	bps := make([]float64, len(history))
	batch := make([]float64, len(history))
	for i, p := range history {
		pps[i] = p.PacketRate
		bps[i] = p.BitRate
		batch[i] = p.AverageBatch
	}
	last := history[len(history)-1]

	d.rateSpark.Sparklines[0].Data = pps
	d.rateSpark.Sparklines[0].Title = "packets/sec " + metrics.FormatRate(last.PacketRate, "pps")
	d.rateSpark.Sparklines[1].Data = bps
	d.rateSpark.Sparklines[1].Title = "bits/sec " + metrics.FormatRate(last.BitRate, "bps")
	d.batchSpark.Sparklines[0].Data = batch
	d.batchSpark.Sparklines[0].Title = fmt.Sprintf("packets per batch %.2f", last.AverageBatch)
}

func (d *Dashboard) updateProgress(stats metrics.Stats) {
	done := stats.Iterations + stats.Failures
	requested := int64(d.runConfig.Iterations)
	percent := 0
	if requested > 0 {
		percent = int(done * 100 / requested)
	}
	if percent > 100 {
		percent = 100
	}
	d.progress.Percent = percent
	d.progress.Label = fmt.Sprintf("%d/%d (%d failed)", stats.Iterations, requested, stats.Failures)
}

func formatErrorRows(errs map[string]int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] == errs[names[j]] {
			return names[i] < names[j]
		}
		return errs[names[i]] > errs[names[j]]
	})
	if len(names) > 10 {
		names = names[:10]
	}
	rows := make([]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", name, errs[name]))
	}
	return rows
}

func (d *Dashboard) formatRunParams() string {
	c := d.runConfig
	line := fmt.Sprintf("tx %s -> rx %s | %d byte packets | %d packets per pass",
		c.TxInterface, c.RxInterface, c.PacketSize, c.PacketsPerIteration)
	if c.ParallelID != nil {
		line += fmt.Sprintf(" | Parallel ID: %d", *c.ParallelID)
	}
	return line
}

func (d *Dashboard) formatRunOptions() string {
	var parts []string

	if d.runConfig.OnFailure != "" {
		parts = append(parts, fmt.Sprintf("On failure: %s", d.runConfig.OnFailure))
	}
	if d.runConfig.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", d.runConfig.Retries))
	}
	if d.runConfig.Interval > 0 {
		parts = append(parts, fmt.Sprintf("Interval: %s", d.runConfig.Interval))
	}
	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
