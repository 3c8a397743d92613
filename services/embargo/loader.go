package embargo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// LoadCSV reads a calendar file with rows of
// release_time,currency,impact,name. release_time is RFC3339; a header row
// is tolerated. Malformed rows are errors, not skips.
func LoadCSV(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	var events []Event
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calendar: %s: %w", path, err)
		}
		line++

		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("calendar: %s line %d: bad time %q: %w", path, line, rec[0], err)
		}
		events = append(events, Event{
			Time:     ts.UTC(),
			Currency: rec[1],
			Impact:   ParseImpact(rec[2]),
			Name:     rec[3],
		})
	}
	return events, nil
}
