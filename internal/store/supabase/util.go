package supabase

import (
	"time"
)

// PostgREST emits timestamps with or without a zone offset depending on the
// column type, so try both layouts before giving up.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
