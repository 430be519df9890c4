package dump

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Compression identifies the decompressor a dump file needs.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionBzip2
	CompressionLZ4
)

func (c Compression) suffix() string {
	switch c {
	case CompressionBzip2:
		return `\.bz2`
	case CompressionLZ4:
		return `\.lz4`
	default:
		return ""
	}
}

const discoveryPrefix = `.*pages.*articles(-multistream)?[0-9]+\.xml-p[0-9]+p[0-9]+`

// Discover enumerates regular files under dir whose names match the dump
// filename grammar for the given compression, optionally further
// filtered by userFilter (nil to skip), sorted by natural-numeric
// comparison of the path so that "...p100p200..." sorts after
// "...p1p99...".
func Discover(dir string, compression Compression, userFilter *regexp.Regexp) ([]string, error) {
	pattern, err := regexp.Compile("^" + discoveryPrefix + compression.suffix() + "$")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !pattern.MatchString(name) {
			continue
		}
		if userFilter != nil && !userFilter.MatchString(name) {
			continue
		}
		matches = append(matches, filepath.Join(dir, name))
	}

	sort.Slice(matches, func(i, j int) bool { return naturalLess(matches[i], matches[j]) })
	return matches, nil
}

var numberRun = regexp.MustCompile(`[0-9]+`)

// naturalLess compares two strings so that embedded runs of digits
// compare numerically rather than lexically ("p2" before "p10").
func naturalLess(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		ac, bc := a[ai], b[bi]
		aDigit, bDigit := ac >= '0' && ac <= '9', bc >= '0' && bc <= '9'
		if aDigit && bDigit {
			aMatch := numberRun.FindString(a[ai:])
			bMatch := numberRun.FindString(b[bi:])
			if aMatch != bMatch {
				an, _ := strconv.ParseUint(aMatch, 10, 64)
				bn, _ := strconv.ParseUint(bMatch, 10, 64)
				if an != bn {
					return an < bn
				}
			}
			ai += len(aMatch)
			bi += len(bMatch)
			continue
		}
		if ac != bc {
			return ac < bc
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}
