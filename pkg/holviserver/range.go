package holviserver

import (
	"strconv"
	"strings"

	"github.com/function61/holvi/pkg/holvitypes"
)

type byteRange struct {
	start  int64
	length int64
}

// parseRangeHeader parses a single-range "bytes=" header (RFC 9110 forms
// "a-b", "a-", "-n") against the file size. nil range = serve the whole file.
// Multiple ranges are explicitly unsupported (501); a syntactically valid
// range that starts past the end is unsatisfiable (416).
func parseRangeHeader(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}

	spec, isBytes := strings.CutPrefix(header, "bytes=")
	if !isBytes {
		return nil, holvitypes.NewError(holvitypes.ErrRangeMalformed, nil)
	}

	if strings.Contains(spec, ",") {
		return nil, holvitypes.NewError(holvitypes.ErrMultiRangeUnsupported, nil)
	}

	spec = strings.TrimSpace(spec)

	first, last, dashFound := strings.Cut(spec, "-")
	if !dashFound {
		return nil, holvitypes.NewError(holvitypes.ErrRangeMalformed, nil)
	}

	if first == "" { // "-n": the last n bytes
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, holvitypes.NewError(holvitypes.ErrRangeMalformed, err)
		}

		if n == 0 {
			return nil, holvitypes.NewError(holvitypes.ErrRangeUnsatisfiable, nil)
		}

		if n > size {
			n = size
		}

		return &byteRange{start: size - n, length: n}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, holvitypes.NewError(holvitypes.ErrRangeMalformed, err)
	}

	if start >= size {
		return nil, holvitypes.NewError(holvitypes.ErrRangeUnsatisfiable, nil)
	}

	if last == "" { // "a-": from a to the end
		return &byteRange{start: start, length: size - start}, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return nil, holvitypes.NewError(holvitypes.ErrRangeMalformed, err)
	}

	if end >= size { // clamp to the last byte
		end = size - 1
	}

	return &byteRange{start: start, length: end - start + 1}, nil
}
