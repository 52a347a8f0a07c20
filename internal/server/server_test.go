package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/state"
)

const step = 100 * time.Millisecond

type fakeMedia struct {
	mu      sync.Mutex
	frames  int
	pos     int
	playing bool
	closed  bool
}

func (m *fakeMedia) Width() int                 { return 32 }
func (m *fakeMedia) Height() int                { return 18 }
func (m *fakeMedia) Path() string               { return "upload.mp4" }
func (m *fakeMedia) HasAudio() bool             { return false }
func (m *fakeMedia) Duration() time.Duration    { return time.Duration(m.frames) * step }
func (m *fakeMedia) Play()                      { m.playing = true }
func (m *fakeMedia) Pause()                     { m.playing = false }
func (m *fakeMedia) CurrentTime() time.Duration { return time.Duration(m.pos) * step }
func (m *fakeMedia) Ended() bool                { return m.pos >= m.frames }

func (m *fakeMedia) Seek(_ context.Context, t time.Duration) error {
	m.pos = int(t / step)
	return nil
}

func (m *fakeMedia) Frame(dst *image.RGBA) error {
	for i := range dst.Pix {
		dst.Pix[i] = 0xff
	}
	if m.playing {
		m.pos++
	}
	return nil
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// gatedSink blocks every write after the first until release is closed.
type gatedSink struct {
	chunks  chan []byte
	once    sync.Once
	writes  int
	started chan struct{}
	release chan struct{}
}

func newGatedSink(gated bool) *gatedSink {
	s := &gatedSink{
		chunks:  make(chan []byte, 4096),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	if !gated {
		close(s.release)
	}
	return s
}

func (s *gatedSink) AttachAudio(string) error    { return encoder.ErrNoAudio }
func (s *gatedSink) DetachAudio()                {}
func (s *gatedSink) Start(context.Context) error { return nil }
func (s *gatedSink) Chunks() <-chan []byte       { return s.chunks }

func (s *gatedSink) WriteFrame(*image.RGBA) error {
	s.writes++
	if s.writes == 1 {
		close(s.started)
	} else {
		<-s.release
	}
	s.chunks <- []byte("x")
	return nil
}

func (s *gatedSink) Stop(context.Context) error {
	s.once.Do(func() { close(s.chunks) })
	return nil
}

func (s *gatedSink) Abort() error {
	s.once.Do(func() { close(s.chunks) })
	return nil
}

type fakeProber map[string]bool

func (f fakeProber) Encoders(context.Context) (map[string]bool, error) { return f, nil }

func newTestServer(t *testing.T, sink *gatedSink, frames int) (*Server, http.Handler) {
	t.Helper()
	s := New(zerolog.Nop(), Deps{
		Open: func(context.Context, string) (Media, error) {
			return &fakeMedia{frames: frames}, nil
		},
		Export: export.Deps{
			Prober: fakeProber{"libvpx-vp9": true, "libopus": true},
			NewSink: func(encoder.Config, encoder.Options) (encoder.Sink, error) {
				return sink, nil
			},
		},
	}, Options{
		UploadDir: t.TempDir(),
		Export:    export.Options{FPS: 10},
	})
	t.Cleanup(s.Close)
	return s, s.Routes()
}

func upload(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func waitJob(t *testing.T, s *Server, id string) {
	t.Helper()
	j, ok := s.jobs.get(id)
	require.True(t, ok)
	select {
	case <-j.done:
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, newGatedSink(false), 1)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestPresets(t *testing.T) {
	_, h := newTestServer(t, newGatedSink(false), 1)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[presetsResponse](t, rec)
	require.Len(t, resp.Filters, 6)
	assert.Equal(t, "none", resp.Filters[0].Name)
	assert.Contains(t, resp.Positions, "bottom-center")
	assert.Len(t, resp.TimestampFormats, 5)
	assert.Equal(t, "webm/vp9", resp.Encoders[0])
}

func TestExportLifecycle(t *testing.T) {
	s, h := newTestServer(t, newGatedSink(false), 4)

	rec := do(h, upload(t, "/api/exports", "clip.mp4", []byte("not really mp4"), map[string]string{
		"filter":         "camcorder",
		"intensity":      "40",
		"title":          "Summer",
		"title_position": "top-center",
		"timestamp":      "2024-03-05T14:07",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[JobView](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/exports/"+created.ID, rec.Header().Get("Location"))

	waitJob(t, s, created.ID)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/exports/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[JobView](t, rec)
	assert.Equal(t, "completed", v.Status)
	assert.Equal(t, "idle", v.Phase)
	assert.Equal(t, 1.0, v.Progress)
	assert.Equal(t, 4, v.Frames)
	assert.Equal(t, "retroclip-export.webm", v.Name)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/exports/"+created.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xxxx", rec.Body.String())
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=retroclip-export.webm`)

	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/exports/"+created.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := rec.Body.String()
	assert.Contains(t, metrics, "retroclip_exports_started_total 1")
	assert.Contains(t, metrics, "retroclip_exports_completed_total 1")
	assert.Contains(t, metrics, "retroclip_frames_rendered_total 4")
	assert.Contains(t, metrics, "retroclip_active_exports 0")
}

func TestExportCancel(t *testing.T) {
	sink := newGatedSink(true)
	s, h := newTestServer(t, sink, 100)

	rec := do(h, upload(t, "/api/exports", "clip.mov", []byte("data"), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decode[JobView](t, rec).ID

	<-sink.started
	// The machine is picked up before the first frame is written.
	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/exports/"+id, nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	close(sink.release)
	waitJob(t, s, id)

	v := decode[JobView](t, do(h, httptest.NewRequest(http.MethodGet, "/api/exports/"+id, nil)))
	assert.Equal(t, "cancelled", v.Status)
	assert.LessOrEqual(t, sink.writes, 2)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/exports/"+id+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	metrics := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String()
	assert.Contains(t, metrics, "retroclip_exports_cancelled_total 1")
}

func TestExportRejectsInput(t *testing.T) {
	_, h := newTestServer(t, newGatedSink(false), 1)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"no file", func() *http.Request {
			return upload(t, "/api/exports", "", nil, map[string]string{"filter": "vhs"})
		}, http.StatusBadRequest},
		{"not a video", func() *http.Request {
			return upload(t, "/api/exports", "notes.txt", []byte("hello world"), nil)
		}, http.StatusUnsupportedMediaType},
		{"bad filter", func() *http.Request {
			return upload(t, "/api/exports", "clip.mp4", []byte("x"), map[string]string{"filter": "sepia"})
		}, http.StatusBadRequest},
		{"bad color", func() *http.Request {
			return upload(t, "/api/exports", "clip.mp4", []byte("x"), map[string]string{"title_color": "orange"})
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.req())
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUnknownExport(t *testing.T) {
	_, h := newTestServer(t, newGatedSink(false), 1)
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := do(h, httptest.NewRequest(method, "/api/exports/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestMetadata(t *testing.T) {
	_, h := newTestServer(t, newGatedSink(false), 1)

	box := func(kind string, body []byte) []byte {
		b := make([]byte, 8, 8+len(body))
		binary.BigEndian.PutUint32(b, uint32(8+len(body)))
		copy(b[4:], kind)
		return append(b, body...)
	}
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[4:], 2082844800+1000000000)
	file := box("moov", box("mvhd", mvhd))

	rec := do(h, upload(t, "/api/metadata", "clip.mp4", file, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[metadataResponse](t, rec)
	assert.Equal(t, "mvhd", resp.Source)
	assert.True(t, resp.CreationDate.Equal(time.Unix(1000000000, 0)))

	rec = do(h, upload(t, "/api/metadata", "clip.mp4", []byte("garbage"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mtime", decode[metadataResponse](t, rec).Source)
}

func TestEditorFromForm(t *testing.T) {
	s := New(zerolog.Nop(), Deps{}, Options{})
	t.Cleanup(s.Close)

	e := state.New()
	err := s.editorFromForm(map[string][]string{
		"title":                {""},
		"title_x":              {"2"},
		"timestamp_background": {"false"},
		"timestamp_format":     {"eu"},
		"timestamp_size":       {"30"},
	}, e)
	require.NoError(t, err)
	assert.Equal(t, "", e.Title.Text)
	assert.Equal(t, state.Position{X: state.MaxPos, Y: 0.88}, e.Title.Pos)
	assert.False(t, e.Timestamp.Background)
	assert.Equal(t, state.FormatEU, e.TimestampFormat)
	assert.Equal(t, 30, e.Timestamp.Size)

	assert.Error(t, s.editorFromForm(map[string][]string{"title_size": {"-3"}}, state.New()))
	assert.Error(t, s.editorFromForm(map[string][]string{"timestamp_position": {"left"}}, state.New()))
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	do(h, httptest.NewRequest(http.MethodGet, "/brew", nil))

	line := buf.String()
	assert.True(t, strings.Contains(line, `"status":418`), line)
	assert.Contains(t, line, `"size":15`)
	assert.Contains(t, line, `"path":"/brew"`)
}
