// Package rangeheader parses the HTTP Range header forms this launcher
// supports, per spec.md §4.3: `bytes=<start>-` and `bytes=<start>-<end>`.
package rangeheader

import (
	"strconv"
	"strings"

	"github.com/vllmd-project/launcher/pkg/api"
)

const unit = "bytes"

// Range is a parsed, validated byte range. End is nil for an open-ended
// range (`bytes=<start>-`).
type Range struct {
	Start int64
	End   *int64
}

// Parse parses the value of a Range header. It rejects any unit other than
// "bytes", suffix ranges ("bytes=-N"), non-integer or negative values, and
// inverted ranges (end < start). Rejections are returned as *api.Error with
// Kind KindBadRequest, ready to surface as a 400.
func Parse(header string) (Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Range{}, api.NewError(api.KindBadRequest, "empty Range header")
	}

	u, spec, ok := strings.Cut(header, "=")
	if !ok || u != unit {
		return Range{}, api.NewError(api.KindBadRequest, "unsupported range unit %q", header)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return Range{}, api.NewError(api.KindBadRequest, "malformed range %q", header)
	}

	if startStr == "" {
		// Suffix range, e.g. "bytes=-500". Not supported by this API.
		return Range{}, api.NewError(api.KindBadRequest, "suffix ranges are not supported: %q", header)
	}

	start, err := parseNonNegativeInt(startStr)
	if err != nil {
		return Range{}, api.NewError(api.KindBadRequest, "invalid range start %q", startStr)
	}

	if endStr == "" {
		return Range{Start: start}, nil
	}

	end, err := parseNonNegativeInt(endStr)
	if err != nil {
		return Range{}, api.NewError(api.KindBadRequest, "invalid range end %q", endStr)
	}
	if end < start {
		return Range{}, api.NewError(api.KindBadRequest, "inverted range %q", header)
	}

	return Range{Start: start, End: &end}, nil
}

func parseNonNegativeInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
