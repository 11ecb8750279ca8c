// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/monstim/internal/log"
)

// DatasetName is the parsed form of a dataset directory name
// "<date> <animal_id> <condition>".
type DatasetName struct {
	Date      string // normalized YYYY-MM-DD
	AnimalID  string
	Condition string
}

// ID returns the canonical dataset identifier.
func (n DatasetName) ID() string {
	return fmt.Sprintf("%s_%s_%s", n.Date, n.AnimalID, strings.ReplaceAll(n.Condition, " ", "-"))
}

// ParseDatasetDirName splits a dataset directory name into date, animal ID
// and condition. The condition may contain spaces.
func ParseDatasetDirName(name string) (DatasetName, error) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 3)
	if len(parts) < 3 {
		return DatasetName{}, fmt.Errorf("dataset directory %q: want \"<date> <animal_id> <condition>\"", name)
	}
	date, err := ParseDate(parts[0], "")
	if err != nil {
		return DatasetName{}, fmt.Errorf("dataset directory %q: %w", name, err)
	}
	return DatasetName{
		Date:      date.Format("2006-01-02"),
		AnimalID:  parts[1],
		Condition: parts[2],
	}, nil
}

// dateFormats maps candidate layouts per digit count. Rig operators have
// used all of these over the years.
var dateFormats = map[int][]struct {
	layout string
	name   string
}{
	6: {
		{"060102", "YYMMDD"},
		{"020106", "DDMMYY"},
		{"010206", "MMDDYY"},
	},
	8: {
		{"20060102", "YYYYMMDD"},
		{"02012006", "DDMMYYYY"},
		{"01022006", "MMDDYYYY"},
	},
}

// ParseDate parses a 6 or 8 digit date string, trying the known rig formats.
// When several formats are plausible, preferredFormat (e.g. "YYMMDD") breaks
// the tie; otherwise the first valid format wins with a warning.
func ParseDate(dateString, preferredFormat string) (time.Time, error) {
	formats, ok := dateFormats[len(dateString)]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date string length (%q): must be 6 or 8 characters", dateString)
	}

	type parsed struct {
		t    time.Time
		name string
	}
	var valid []parsed
	for _, f := range formats {
		if t, err := time.Parse(f.layout, dateString); err == nil {
			valid = append(valid, parsed{t, f.name})
		}
	}
	if len(valid) == 0 {
		return time.Time{}, fmt.Errorf("no valid date format found for %q", dateString)
	}
	if len(valid) == 1 {
		return valid[0].t, nil
	}

	if preferredFormat != "" {
		for _, p := range valid {
			if p.name == preferredFormat {
				return p.t, nil
			}
		}
	}

	names := make([]string, len(valid))
	for i, p := range valid {
		names[i] = p.name
	}
	logger := log.WithComponent("jobs")
	logger.Warn().
		Str("event", "import.ambiguous_date").
		Str("date", dateString).
		Strs("formats", names).
		Str("using", valid[0].name).
		Msg("ambiguous date, using first valid format")
	return valid[0].t, nil
}
