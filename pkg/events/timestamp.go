package events

import "time"

// DisplayLayout renders a timestamp as e.g. "15 January 2024 - 10:30 AM UTC".
const DisplayLayout = "02 January 2006 - 03:04 PM UTC"

// inputLayouts covers the ISO-8601 shapes GitHub and hand-written payloads use:
// extended or basic date, T or space separator, hour to second precision (any
// fractional seconds are accepted after the seconds field) and an optional zone.
var inputLayouts = buildInputLayouts()

func buildInputLayouts() []string {
	layouts := []string{"2006-01-02", "20060102"}
	zones := []string{"", "Z07:00", "Z0700", "Z07"}
	for _, date := range []string{"2006-01-02", "20060102"} {
		clocks := []string{"15:04:05", "15:04", "15"}
		if date == "20060102" {
			clocks = []string{"150405", "1504", "15"}
		}
		for _, sep := range []string{"T", " "} {
			for _, clock := range clocks {
				for _, zone := range zones {
					layouts = append(layouts, date+sep+clock+zone)
				}
			}
		}
	}
	return layouts
}

// FormatTimestamp renders an ISO-8601 timestamp with DisplayLayout. The wall
// clock of the input is kept as written, whatever its offset. Anything
// unparseable is returned unchanged.
func FormatTimestamp(raw string) string {
	for _, layout := range inputLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.Format(DisplayLayout)
		}
	}
	return raw
}
