package catalogue

import (
	"strings"
	"time"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// parseTimestamp extracts the trailing 14-digit run-id timestamp from a
// key by: splitting on "." (first segment), splitting that on "_", and
// parsing the last segment's leading 14 characters per layout (UTC).
// Any failure is a fatal CatalogueError — the caller must never
// silently skip a key it cannot parse.
func parseTimestamp(key, layout string) (time.Time, error) {
	base := key
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}

	parts := strings.Split(base, "_")
	last := parts[len(parts)-1]

	if len(last) < 14 {
		return time.Time{}, apperr.New(apperr.KindCatalogue, "catalogue", "parseTimestamp",
			"key has no 14-digit run id: "+key)
	}

	digits := last[:14]

	ts, err := time.ParseInLocation(layout, digits, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindCatalogue, "catalogue", "parseTimestamp",
			"unparseable run id in key: "+key, err)
	}

	return ts, nil
}
