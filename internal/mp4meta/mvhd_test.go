package mp4meta

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(kind string, body []byte) []byte {
	b := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(b, uint32(8+len(body)))
	copy(b[4:], kind)
	return append(b, body...)
}

func largeBox(kind string, body []byte) []byte {
	b := make([]byte, 16, 16+len(body))
	binary.BigEndian.PutUint32(b, 1)
	copy(b[4:], kind)
	binary.BigEndian.PutUint32(b[12:], uint32(16+len(body)))
	return append(b, body...)
}

func mvhdV0(creation uint32) []byte {
	body := make([]byte, 100)
	binary.BigEndian.PutUint32(body[4:], creation)
	return box("mvhd", body)
}

func mvhdV1(high, low uint32) []byte {
	body := make([]byte, 112)
	body[0] = 1
	binary.BigEndian.PutUint32(body[4:], high)
	binary.BigEndian.PutUint32(body[8:], low)
	return box("mvhd", body)
}

func mvhdVersion(version byte, high, low uint32) []byte {
	b := mvhdV1(high, low)
	b[8] = version
	return b
}

// hugeLargeBox declares a 64-bit size whose low word matches the real length.
func hugeLargeBox(kind string, body []byte) []byte {
	b := largeBox(kind, body)
	binary.BigEndian.PutUint32(b[8:], 1)
	return b
}

func movie(children ...[]byte) []byte {
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))
	return append(ftyp, box("moov", bytes.Join(children, nil))...)
}

func TestFindCreationDateVersion0(t *testing.T) {
	buf := movie(mvhdV0(mac1904Offset + 1000000000))

	r := FindCreationDate(buf)
	require.True(t, r.Found)
	assert.Equal(t, int64(1000000000), r.CreationDate.Unix())
	assert.Equal(t, "2001-09-09T01:46:40Z", r.CreationDate.Format(time.RFC3339))
}

func TestFindCreationDateVersion1(t *testing.T) {
	// 2024-03-05T14:07:09Z in 1904-epoch seconds fits in the low word.
	raw := uint64(time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC).Unix()) + mac1904Offset
	buf := movie(mvhdV1(uint32(raw>>32), uint32(raw)))

	r := FindCreationDate(buf)
	require.True(t, r.Found)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC), r.CreationDate)
}

func TestFindCreationDateLaterVersionsUse64BitTimes(t *testing.T) {
	raw := uint64(time.Date(2019, 8, 1, 9, 0, 0, 0, time.UTC).Unix()) + mac1904Offset
	buf := movie(mvhdVersion(2, uint32(raw>>32), uint32(raw)))

	r := FindCreationDate(buf)
	require.True(t, r.Found)
	assert.Equal(t, time.Date(2019, 8, 1, 9, 0, 0, 0, time.UTC), r.CreationDate)
}

func TestFindCreationDateRejects(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"zero creation", movie(mvhdV0(0))},
		{"before 1970", movie(mvhdV0(mac1904Offset - 10))},
		{"after 2100", movie(mvhdV1(2, 0))},
		{"no moov", box("ftyp", []byte("isom"))},
		{"unrelated boxes only", box("free", make([]byte, 32))},
		{"truncated moov", movie(mvhdV0(mac1904Offset + 5))[:40]},
		{"size zero", append([]byte{0, 0, 0, 0}, []byte("moov0000")...)},
		{"size smaller than header", append([]byte{0, 0, 0, 4}, []byte("moov00000000")...)},
		{"truncated large size", append([]byte{0, 0, 0, 1}, []byte("moov0000")...)},
		{"mvhd body too short", movie(box("mvhd", []byte{0, 0, 0, 0}))},
		{"v1 body too short", movie(box("mvhd", []byte{1, 0, 0, 0, 0, 0, 0, 0}))},
		{"v2 body too short", movie(box("mvhd", []byte{2, 0, 0, 0, 0, 0, 0, 0}))},
		{"size past end", append([]byte{0xff, 0xff, 0xff, 0xf8}, []byte("moov00000000")...)},
		{"large size high word", hugeLargeBox("moov", mvhdV0(mac1904Offset+5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				r := FindCreationDate(tt.buf)
				assert.False(t, r.Found)
			})
		})
	}
}

func TestFindCreationDateLargeSizeBoxes(t *testing.T) {
	inner := mvhdV0(mac1904Offset + 42)
	buf := append(box("ftyp", []byte("isom")), largeBox("moov", inner)...)

	r := FindCreationDate(buf)
	require.True(t, r.Found)
	assert.Equal(t, int64(42), r.CreationDate.Unix())
}

func TestFindCreationDateSkipsSiblings(t *testing.T) {
	buf := movie(box("udta", make([]byte, 20)), mvhdV0(mac1904Offset+7))
	buf = append(box("mdat", make([]byte, 64)), buf...)

	r := FindCreationDate(buf)
	require.True(t, r.Found)
	assert.Equal(t, int64(7), r.CreationDate.Unix())
}

func TestFindCreationDateDoesNotMutate(t *testing.T) {
	buf := movie(mvhdV0(mac1904Offset + 1000000000))
	snapshot := bytes.Clone(buf)

	FindCreationDate(buf)
	assert.Equal(t, snapshot, buf)
}

func TestResolveFallsBackToModTime(t *testing.T) {
	dir := t.TempDir()

	withHeader := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(withHeader, movie(mvhdV0(mac1904Offset+1000000000)), 0o644))
	date, src, err := Resolve(withHeader)
	require.NoError(t, err)
	assert.Equal(t, SourceMetadata, src)
	assert.Equal(t, int64(1000000000), date.Unix())

	without := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(without, []byte("not a movie"), 0o644))
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(without, mtime, mtime))
	date, src, err = Resolve(without)
	require.NoError(t, err)
	assert.Equal(t, SourceModTime, src)
	assert.True(t, date.Equal(mtime))

	_, _, err = Resolve(filepath.Join(dir, "missing.mp4"))
	assert.Error(t, err)
}

func TestLocalDatetime(t *testing.T) {
	ts := time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC)
	assert.Equal(t, "2001-09-09T01:46", LocalDatetime(ts, time.UTC))
}
