package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/torosent/pktbench/internal/metrics"
	"github.com/torosent/pktbench/internal/threshold"
)

// DefaultHTMLName is the plot file written next to the CSV by --draw-plots.
const DefaultHTMLName = "pkt_gen_plots.html"

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Run              RunInfo
	Stats            metrics.Stats
	History          []metrics.DataPoint
	ThresholdResults []threshold.Result
	ThresholdSummary *ThresholdSummary
	HistoryJSON      string
}

// GenerateHTMLReport renders a standalone HTML page with one chart per
// series (packets/sec, throughput, average batch) indexed by iteration.
func GenerateHTMLReport(w io.Writer, info RunInfo, stats metrics.Stats, history []metrics.DataPoint, thresholdResults []threshold.Result) error {
	if history == nil {
		history = []metrics.DataPoint{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Run:              info,
		Stats:            stats,
		History:          history,
		ThresholdResults: thresholdResults,
		ThresholdSummary: summarizeThresholds(thresholdResults),
		HistoryJSON:      string(historyJSON),
	}

	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// WriteHTMLReport renders the report into path, creating parent directories.
func WriteHTMLReport(path string, info RunInfo, stats metrics.Stats, history []metrics.DataPoint, thresholdResults []threshold.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create HTML report: %w", err)
	}
	if err := GenerateHTMLReport(file, info, stats, history, thresholdResults); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"formatFloat": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
	"formatPPS": formatPPS,
	"formatBPS": formatBPS,
	"formatThreshold": func(metric string, v float64) string {
		switch metric {
		case threshold.MetricPacketRate:
			return formatPPS(v)
		case threshold.MetricThroughput:
			return formatBPS(v)
		default:
			return formatPlain(v)
		}
	},
	"formatPercent": func(part, total int64) string {
		if total == 0 {
			return "0.0"
		}
		return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
	},
	"add": func(a, b int64) int64 { return a + b },
}).Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pkt-gen Benchmark {{.Run.RunID}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 1.8rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
            border-radius: 8px;
        }
        .chart-container h3 { font-size: 1.1rem; margin-bottom: 15px; color: #4b5563; }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
        }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .no-data { text-align: center; padding: 40px; color: #6c757d; font-style: italic; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>pkt-gen Benchmark Report</h1>
            <div class="meta">Run {{.Run.RunID}}{{if .Run.ParallelID}} | Parallel ID {{.Run.ParallelID}}{{end}} | tx {{.Run.TxInterface}} → rx {{.Run.RxInterface}} | {{.Run.PacketSize}} byte packets | {{.Run.PacketsPerIteration}} packets per pass</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Stats.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card success">
                    <h3>Iterations</h3>
                    <div class="value">{{.Stats.Iterations}}</div>
                    <div class="subvalue">of {{.Run.Requested}} requested</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Stats.Failures}}</div>
                    <div class="subvalue">{{formatPercent .Stats.Failures (add .Stats.Iterations .Stats.Failures)}}% of attempts</div>
                </div>
                <div class="card">
                    <h3>Mean Packet Rate</h3>
                    <div class="value">{{formatPPS .Stats.PacketRate.Mean}}</div>
                    <div class="subvalue">min {{formatPPS .Stats.PacketRate.Min}} / max {{formatPPS .Stats.PacketRate.Max}}</div>
                </div>
                <div class="card">
                    <h3>Mean Throughput</h3>
                    <div class="value">{{formatBPS .Stats.BitRate.Mean}}</div>
                    <div class="subvalue">min {{formatBPS .Stats.BitRate.Min}} / max {{formatBPS .Stats.BitRate.Max}}</div>
                </div>
                <div class="card">
                    <h3>Mean Average Batch</h3>
                    <div class="value">{{formatFloat .Stats.AverageBatch.Mean}}</div>
                    <div class="subvalue">packets per batch</div>
                </div>
            </div>

            <div class="section">
                <h2>Per-Iteration Measurements</h2>
                {{if .History}}
                <div class="chart-container">
                    <h3>Packets Per Second</h3>
                    <div id="pps-chart" class="chart"></div>
                </div>
                <div class="chart-container">
                    <h3>Throughput (bits/sec)</h3>
                    <div id="bps-chart" class="chart"></div>
                </div>
                <div class="chart-container">
                    <h3>Average Batch (packets)</h3>
                    <div id="batch-chart" class="chart"></div>
                </div>
                {{else}}
                <div class="no-data">No data: no iteration completed.</div>
                {{end}}
            </div>

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatThreshold .Metric .Expected}}</td>
                            <td>{{formatThreshold .Metric .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Run.Failures}}
            <div class="section">
                <h2>Failed Iterations</h2>
                <table>
                    <tbody>
                        {{range .Run.Failures}}
                        <tr><td>{{.}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .History}}
    <script>
        const history = JSON.parse({{.HistoryJSON}});

        function plot(id, title, label, values, stroke) {
            const el = document.getElementById(id);
            new uPlot({
                title: title,
                width: el.offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Iteration" },
                    { label: label, stroke: stroke, width: 2, points: { show: true } }
                ],
                axes: [
                    { label: "Iteration" },
                    { label: label }
                ]
            }, [history.map(d => d.iteration), values], el);
        }

        if (history && history.length > 0) {
            plot("pps-chart", "Packets Per Second", "packets/sec", history.map(d => d.packets_per_sec), "#0f766e");
            plot("bps-chart", "Throughput", "bits/sec", history.map(d => d.bits_per_sec), "#1e3a8a");
            plot("batch-chart", "Average Batch", "packets", history.map(d => d.average_batch), "#f59e0b");
        }
    </script>
    {{end}}
</body>
</html>
`
