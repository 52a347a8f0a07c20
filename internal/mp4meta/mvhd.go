// Package mp4meta extracts the creation date recorded in the movie header
// (moov > mvhd) of ISO base media files such as MP4 and MOV.
package mp4meta

import (
	"encoding/binary"
	"time"
)

const (
	// mac1904Offset is the number of seconds between 1904-01-01 and 1970-01-01.
	mac1904Offset = 2082844800
	// maxUnixSeconds bounds accepted dates to 2100-01-01.
	maxUnixSeconds = 4102444800

	boxHeaderSize      = 8
	largeBoxHeaderSize = 16
)

// Result is the outcome of a header walk: a creation date or nothing.
type Result struct {
	CreationDate time.Time
	Found        bool
}

// FindCreationDate walks buf looking for moov > mvhd and returns its
// creation time in UTC. buf is never modified. Malformed, truncated or
// unsupported layouts yield a Result with Found == false.
func FindCreationDate(buf []byte) Result {
	return walk(buf, 0, len(buf))
}

func walk(buf []byte, offset, end int) Result {
	for offset+boxHeaderSize < end {
		size := uint64(binary.BigEndian.Uint32(buf[offset:]))
		kind := string(buf[offset+4 : offset+8])
		header := uint64(boxHeaderSize)

		switch size {
		case 0:
			// Box runs to end of file; not supported here.
			return Result{}
		case 1:
			if offset+largeBoxHeaderSize > end {
				return Result{}
			}
			size = binary.BigEndian.Uint64(buf[offset+8:])
			header = largeBoxHeaderSize
		}

		// Compared as uint64 so a size near 2^32 cannot wrap past end.
		if size < header || size > uint64(end-offset) {
			return Result{}
		}
		n, h := int(size), int(header)

		switch kind {
		case "moov":
			if r := walk(buf, offset+h, offset+n); r.Found {
				return r
			}
		case "mvhd":
			return parseMvhd(buf, offset+h, offset+n)
		}

		offset += n
	}
	return Result{}
}

func parseMvhd(buf []byte, start, end int) Result {
	if start >= end {
		return Result{}
	}

	var raw uint64
	// Version 0 is the only 32-bit layout; later versions keep 64-bit times.
	if version := buf[start]; version != 0 {
		if start+12 > end {
			return Result{}
		}
		high := uint64(binary.BigEndian.Uint32(buf[start+4:]))
		low := uint64(binary.BigEndian.Uint32(buf[start+8:]))
		raw = high<<32 | low
	} else {
		if start+8 > end {
			return Result{}
		}
		raw = uint64(binary.BigEndian.Uint32(buf[start+4:]))
	}

	if raw == 0 || raw < mac1904Offset {
		return Result{}
	}
	unix := raw - mac1904Offset
	if unix > maxUnixSeconds {
		return Result{}
	}

	return Result{CreationDate: time.Unix(int64(unix), 0).UTC(), Found: true}
}
