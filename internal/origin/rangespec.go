package origin

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errRangeIgnored       = errors.New("range header ignored")
	errRangeUnsatisfiable = errors.New("range not satisfiable")
)

// byteRange is an inclusive span of a file.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// parseRange reads a single "bytes=start-end" range against a file of size
// bytes. Either bound may be empty: a missing start means 0 and a missing end
// means the last byte. An end past the file is clamped. Headers that are not
// a single byte range yield errRangeIgnored and the whole file is served.
func parseRange(header string, size int64) (byteRange, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return byteRange{}, errRangeIgnored
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return byteRange{}, errRangeIgnored
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	r := byteRange{start: 0, end: size - 1}
	if first != "" {
		n, err := strconv.ParseInt(first, 10, 64)
		if err != nil || n < 0 {
			return byteRange{}, errRangeIgnored
		}
		r.start = n
	}
	if last != "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return byteRange{}, errRangeIgnored
		}
		r.end = min(n, size-1)
	}
	if size == 0 || r.start >= size || r.start > r.end {
		return byteRange{}, errRangeUnsatisfiable
	}
	return r, nil
}
