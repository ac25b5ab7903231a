package export

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/mmynk/rollcall/internal/models"
)

//go:embed report.html.tmpl
var reportTemplate string

var printTmpl = template.Must(template.New("report").Parse(reportTemplate))

type printRow struct {
	Cells []string
}

type printData struct {
	Generated string
	Columns   []string
	Rows      []printRow
	Total     int
	Unique    int
	DateRange string
	Search    string
}

// HTML renders a print-ready report document with a summary block.
func HTML(req Request) ([]byte, error) {
	data := printData{
		Generated: req.Generated.Format("January 2, 2006"),
		Columns:   Columns[:6],
		Total:     len(req.Records),
		Unique:    uniqueStaff(req.Records),
		DateRange: "N/A",
		Search:    req.Filter.Search,
	}
	for _, r := range req.Records {
		data.Rows = append(data.Rows, printRow{Cells: row(r)[:6]})
	}
	if req.Summary.FirstDate != "" {
		data.DateRange = req.Summary.FirstDate + " to " + req.Summary.LastDate
	}

	var buf bytes.Buffer
	if err := printTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uniqueStaff(records []models.AttendanceRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.StaffID] = struct{}{}
	}
	return len(seen)
}
