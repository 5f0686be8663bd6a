package reporting

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"netrisk/internal/analysis"
	"netrisk/internal/models"
)

// Report is everything a session report shows.
type Report struct {
	Generated time.Time
	Status    models.Status
	Summary   analysis.Summary
	Packets   []models.PacketRecord
}

var funcs = template.FuncMap{
	"bytes": formatBytes,
	"count": func(m map[models.Risk]int64, r string) int64 { return m[models.Risk(r)] },
	"clock": func(t time.Time) string { return t.Format("15:04:05") },
	"riskClass": func(r models.Risk) string {
		switch r {
		case models.RiskHigh:
			return "high"
		case models.RiskMedium:
			return "medium"
		}
		return "low"
	},
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>netrisk Session Report - {{.Generated.Format "20060102_150405"}}</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .high { color: #d9534f; font-weight: bold; }
        .medium { color: #f0ad4e; }
        .low { color: #5cb85c; }
    </style>
</head>
<body>
    <h1>netrisk Session Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> {{.Generated.Format "Mon, 02 Jan 2006 15:04:05 MST"}}</p>
        <p><strong>Session:</strong> {{with .Status.SessionID}}{{.}}{{else}}none{{end}}{{with .Status.Interface}} on {{.}}{{end}}</p>
        <p><strong>Packets:</strong> {{.Summary.Packets}} ({{.Summary.Degraded}} unreadable)</p>
        <p><strong>Total Data Transferred:</strong> {{bytes .Summary.TotalBytes}}</p>
    </div>

    <h2>Risk Distribution</h2>
    <table>
        <thead><tr><th>Risk</th><th>Packets</th></tr></thead>
        <tbody>
            <tr><td class="high">HIGH</td><td>{{count .Summary.Risk "HIGH"}}</td></tr>
            <tr><td class="medium">MEDIUM</td><td>{{count .Summary.Risk "MEDIUM"}}</td></tr>
            <tr><td class="low">LOW</td><td>{{count .Summary.Risk "LOW"}}</td></tr>
        </tbody>
    </table>

    <h2>Top Talkers</h2>
    <table>
        <thead><tr><th>IP Address</th><th>Data Transferred (Bytes)</th></tr></thead>
        <tbody>
{{- range .Summary.TopTalkers}}
            <tr><td>{{.IP}}</td><td>{{.Bytes}}</td></tr>
{{- else}}
            <tr><td colspan="2">No addressed traffic captured.</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Protocols</h2>
    <table>
        <thead><tr><th>Protocol</th><th>Packets</th></tr></thead>
        <tbody>
{{- range .Summary.Protocols}}
            <tr><td>{{.Protocol}}</td><td>{{.Count}}</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Security Alerts</h2>
    <table>
        <thead><tr><th>Time</th><th>Type</th><th>Source</th><th>Message</th></tr></thead>
        <tbody>
{{- range .Summary.Alerts}}
            <tr><td>{{clock .Timestamp}}</td><td class="high">{{.Type}}</td><td>{{.Source}}</td><td>{{.Message}}</td></tr>
{{- else}}
            <tr><td colspan="4">No alerts triggered during this session.</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Latest Packets</h2>
    <table>
        <thead><tr><th>ID</th><th>Time</th><th>Source</th><th>Destination</th><th>Protocol</th><th>Length</th><th>Risk</th></tr></thead>
        <tbody>
{{- range .Packets}}
            <tr><td>{{.ID}}</td><td>{{clock .Timestamp}}</td><td>{{.Source}}</td><td>{{.Destination}}</td><td>{{.Protocol}}</td><td>{{.Length}}</td><td class="{{riskClass .Risk}}">{{.Risk}}</td></tr>
{{- else}}
            <tr><td colspan="7">No packets captured.</td></tr>
{{- end}}
        </tbody>
    </table>
</body>
</html>
`))

// Render writes r as an HTML page.
func Render(w io.Writer, r Report) error {
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	return errors.Wrap(page.Execute(w, r), "render report")
}

// GenerateSessionReport writes r to a timestamped HTML file in dir and returns its path.
func GenerateSessionReport(dir string, r Report) (string, error) {
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create report directory")
	}

	filename := filepath.Join(dir, fmt.Sprintf("report_%s.html", r.Generated.Format("20060102_150405")))
	file, err := os.Create(filename)
	if err != nil {
		return "", errors.Wrap(err, "create report")
	}
	defer file.Close()

	if err := Render(file, r); err != nil {
		return "", err
	}
	return filename, nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
