package export

import (
	"strings"

	"github.com/mmynk/rollcall/internal/models"
)

// CSV renders records as comma-separated text. The header row is bare and
// every data cell is wrapped in double quotes, with embedded quotes doubled.
func CSV(records []models.AttendanceRecord) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(Columns, ","))
	for _, r := range records {
		b.WriteByte('\n')
		for i, cell := range row(r) {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return []byte(b.String())
}
