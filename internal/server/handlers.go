package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/effects"
	"github.com/kikiluvv/retroclip/internal/encoder"
	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/media"
	"github.com/kikiluvv/retroclip/internal/mp4meta"
	"github.com/kikiluvv/retroclip/internal/render"
	"github.com/kikiluvv/retroclip/internal/state"
	"github.com/kikiluvv/retroclip/pkg/util"
)

const multipartMemory = 32 << 20

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type presetView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type presetsResponse struct {
	Filters          []presetView              `json:"filters"`
	Positions        map[string]state.Position `json:"positions"`
	TimestampFormats []state.TimestampFormat   `json:"timestamp_formats"`
	Encoders         []string                  `json:"encoders"`
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	resp := presetsResponse{
		Filters:          []presetView{{Name: string(state.FilterNone), Description: "No treatment"}},
		Positions:        make(map[string]state.Position),
		TimestampFormats: state.TimestampFormats,
	}
	for _, r := range effects.Recipes() {
		resp.Filters = append(resp.Filters, presetView{Name: string(r.Filter), Description: r.Description})
	}
	for _, name := range s.positions.List() {
		pos, _ := s.positions.Get(name)
		resp.Positions[name] = pos
	}
	candidates := s.opts.Export.Candidates
	if len(candidates) == 0 {
		candidates = encoder.DefaultCandidates
	}
	for _, c := range candidates {
		resp.Encoders = append(resp.Encoders, c.Name)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type metadataResponse struct {
	CreationDate time.Time `json:"creation_date"`
	Local        string    `json:"local"`
	Source       string    `json:"source"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	path, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, uploadStatus(err), err)
		return
	}
	defer util.CleanupFiles(path)

	created, source, err := mp4meta.Resolve(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metadataResponse{
		CreationDate: created.UTC(),
		Local:        mp4meta.LocalDatetime(created, nil),
		Source:       string(source),
	})
}

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Open == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("exports are not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	path, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, uploadStatus(err), err)
		return
	}
	if err := media.ValidateInput(path); err != nil {
		util.CleanupFiles(path)
		status := http.StatusBadRequest
		if errors.Is(err, media.ErrNotVideo) {
			status = http.StatusUnsupportedMediaType
		}
		s.writeError(w, status, err)
		return
	}

	editor := state.New()
	if s.opts.EditorDefaults != nil {
		if err := s.opts.EditorDefaults(editor); err != nil {
			util.CleanupFiles(path)
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if err := s.editorFromForm(r.MultipartForm.Value, editor); err != nil {
		util.CleanupFiles(path)
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, ok := r.MultipartForm.Value["timestamp"]; !ok {
		if created, _, err := mp4meta.Resolve(path); err == nil {
			editor.Timestamp.Text = mp4meta.LocalDatetime(created, nil)
		}
	}
	editor.Loaded = true

	ctx, cancel := context.WithCancel(s.base)
	j := &job{
		id:       uuid.NewString(),
		created:  time.Now(),
		cancel:   cancel,
		status:   statusRunning,
		download: &export.MemoryDownloader{},
		done:     make(chan struct{}),
	}
	s.jobs.put(j)
	s.metrics.started()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runJob(ctx, j, path, editor)
	}()

	w.Header().Set("Location", "/api/exports/"+j.id)
	s.writeJSON(w, http.StatusAccepted, j.view())
}

func (s *Server) runJob(ctx context.Context, j *job, path string, editor *state.Editor) {
	defer close(j.done)
	defer util.CleanupFiles(path)
	log := s.logger.With().Str("export", j.id).Logger()

	var (
		res *export.Result
		err error
	)
	defer func() { s.finish(j, res, err) }()

	src, err := s.deps.Open(ctx, path)
	if err != nil {
		err = fmt.Errorf("open upload: %w", err)
		return
	}
	defer src.Close()

	sched := render.NewScheduler(log, editor, state.NewQueue(16), render.Options{})
	deps := s.deps.Export
	deps.Downloader = j.download
	deps.OnProgress = j.update
	m := export.NewMachine(log, sched, deps, s.opts.Export)

	j.mu.Lock()
	j.machine = m
	j.mu.Unlock()

	res, err = m.Run(ctx, src)
}

func (s *Server) finish(j *job, res *export.Result, err error) {
	j.mu.Lock()
	j.machine = nil
	j.result = res
	switch {
	case err == nil:
		j.status = statusCompleted
		j.fraction = 1
	case errors.Is(err, export.ErrCancelled) || errors.Is(err, context.Canceled):
		j.status = statusCancelled
	default:
		j.status = statusFailed
		j.err = err.Error()
	}
	j.phase = export.PhaseIdle
	status, frames := j.status, j.frames
	j.mu.Unlock()

	var seconds float64
	fallback := false
	if res != nil {
		seconds = res.Elapsed.Seconds()
		fallback = res.TranscodeErr != nil
		frames = max(frames, res.Frames)
	}
	s.metrics.finished(status, frames, seconds, fallback)
	s.logger.Info().Str("export", j.id).Str("status", string(status)).Int("frames", frames).Msg("Export job finished")
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*job, bool) {
	id := chi.URLParam(r, "id")
	j, ok := s.jobs.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("export %q not found", id))
	}
	return j, ok
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, j.view())
}

func (s *Server) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if !j.requestCancel() {
		s.writeError(w, http.StatusConflict, errors.New("export is not running"))
		return
	}
	s.writeJSON(w, http.StatusAccepted, j.view())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	name, blob, ok := j.download.Get()
	if !ok {
		s.writeError(w, http.StatusConflict, errors.New("export has no result"))
		return
	}
	j.mu.Lock()
	res := j.result
	j.mu.Unlock()
	w.Header().Set("Content-Type", contentType(res, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob); err != nil {
		s.logger.Debug().Err(err).Str("export", j.id).Msg("download interrupted")
	}
}

func contentType(res *export.Result, name string) string {
	if res != nil {
		if res.Transcoded {
			return "video/mp4"
		}
		if c, ok := encoder.Lookup(res.Encoder); ok && c.MIME != "" {
			return c.MIME
		}
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

var errNoFile = errors.New(`multipart field "file" is required`)

// saveUpload stores the multipart "file" field in the upload directory,
// keeping its extension.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", errNoFile
	}
	defer file.Close()

	if err := util.EnsureDir(s.opts.UploadDir); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	out, err := util.TempFile(s.opts.UploadDir, "upload-", ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		util.CleanupFiles(out.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		util.CleanupFiles(out.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return out.Name(), nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case strings.HasPrefix(err.Error(), "parse upload"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// editorFromForm applies form values onto e. Absent fields keep their
// current values.
func (s *Server) editorFromForm(form url.Values, e *state.Editor) error {
	if v := form.Get("filter"); v != "" {
		f, err := state.ParseFilter(v)
		if err != nil {
			return err
		}
		e.Filter = f
	}
	if v := form.Get("intensity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("intensity: %w", err)
		}
		e.SetIntensity(n)
	}
	if v := form.Get("timestamp_format"); v != "" {
		f, err := state.ParseTimestampFormat(v)
		if err != nil {
			return err
		}
		e.TimestampFormat = f
	}
	if err := s.layerFromForm(form, "title", &e.Title); err != nil {
		return err
	}
	return s.layerFromForm(form, "timestamp", &e.Timestamp)
}

func (s *Server) layerFromForm(form url.Values, prefix string, l *state.TextLayer) error {
	if vs, ok := form[prefix]; ok && len(vs) > 0 {
		l.Text = vs[0]
	}
	if v := form.Get(prefix + "_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s_size: invalid size %q", prefix, v)
		}
		l.Size = n
	}
	if v := form.Get(prefix + "_color"); v != "" {
		if _, err := compositor.ParseHex(v); err != nil {
			return fmt.Errorf("%s_color: %w", prefix, err)
		}
		l.Color = v
	}
	if v := form.Get(prefix + "_background"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s_background: %w", prefix, err)
		}
		l.Background = b
	}
	if v := form.Get(prefix + "_position"); v != "" {
		pos, ok := s.positions.Get(v)
		if !ok {
			return fmt.Errorf("%s_position: unknown position %q", prefix, v)
		}
		l.Pos = pos
	}
	xs, ys := form.Get(prefix+"_x"), form.Get(prefix+"_y")
	if xs != "" || ys != "" {
		pos := l.Pos
		if xs != "" {
			x, err := strconv.ParseFloat(xs, 64)
			if err != nil {
				return fmt.Errorf("%s_x: %w", prefix, err)
			}
			pos.X = x
		}
		if ys != "" {
			y, err := strconv.ParseFloat(ys, 64)
			if err != nil {
				return fmt.Errorf("%s_y: %w", prefix, err)
			}
			pos.Y = y
		}
		l.Pos = pos.Clamped()
	}
	return nil
}
