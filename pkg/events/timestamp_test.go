package events

import (
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"utc suffix", "2024-01-15T10:30:00Z", "15 January 2024 - 10:30 AM UTC"},
		{"afternoon", "2024-03-05T21:07:00Z", "05 March 2024 - 09:07 PM UTC"},
		{"midnight", "2024-12-31T00:00:59Z", "31 December 2024 - 12:00 AM UTC"},
		{"offset keeps wall clock", "2024-01-15T10:30:00+05:30", "15 January 2024 - 10:30 AM UTC"},
		{"negative offset", "2024-01-15T22:45:00-08:00", "15 January 2024 - 10:45 PM UTC"},
		{"compact offset", "2024-01-15T10:30:00+0530", "15 January 2024 - 10:30 AM UTC"},
		{"hour offset", "2024-01-15T10:30:00+05", "15 January 2024 - 10:30 AM UTC"},
		{"minute precision", "2024-01-15T10:30", "15 January 2024 - 10:30 AM UTC"},
		{"minute precision with zone", "2024-01-15T10:30Z", "15 January 2024 - 10:30 AM UTC"},
		{"hour precision", "2024-01-15T10", "15 January 2024 - 10:00 AM UTC"},
		{"basic format", "20240115T103000", "15 January 2024 - 10:30 AM UTC"},
		{"space separator with offset", "2024-01-15 10:30:00+02:00", "15 January 2024 - 10:30 AM UTC"},
		{"fractional seconds", "2024-01-15T10:30:00.123456Z", "15 January 2024 - 10:30 AM UTC"},
		{"naive", "2024-01-15T10:30:00", "15 January 2024 - 10:30 AM UTC"},
		{"space separator", "2024-01-15 10:30:00", "15 January 2024 - 10:30 AM UTC"},
		{"date only", "2024-01-15", "15 January 2024 - 12:00 AM UTC"},
		{"garbage", "yesterday", "yesterday"},
		{"empty", "", ""},
		{"invalid month", "2024-13-01T00:00:00Z", "2024-13-01T00:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatTimestamp(tc.in))
		})
	}
}

var displayPattern = regexp.MustCompile(`^\d{2} (January|February|March|April|May|June|July|August|September|October|November|December) \d{4} - (0[1-9]|1[0-2]):[0-5]\d (AM|PM) UTC$`)

func TestFormatTimestampProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("valid timestamps render the fixed template", prop.ForAll(
		func(ts time.Time) bool {
			out := FormatTimestamp(ts.Format(time.RFC3339))
			return displayPattern.MatchString(out) && out == FormatTimestamp(ts.Format(time.RFC3339))
		},
		gen.TimeRange(start, end.Sub(start)),
	))

	properties.Property("malformed input is returned unchanged", prop.ForAll(
		func(s string) bool {
			return FormatTimestamp("x"+s) == "x"+s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
