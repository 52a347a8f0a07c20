package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/compositor"
	"github.com/kikiluvv/retroclip/internal/ffmpeg"
)

type fakeProber struct {
	encoders map[string]bool
	err      error
}

func (f fakeProber) Encoders(context.Context) (map[string]bool, error) {
	return f.encoders, f.err
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool)
	for _, n := range names {
		m[n] = true
	}
	return m
}

func TestNegotiateFirstSupportedWins(t *testing.T) {
	tests := []struct {
		name      string
		prober    Prober
		want      string
		wantAudio string
	}{
		{"vp9 and opus", fakeProber{encoders: set("libvpx-vp9", "libvpx", "libopus")}, "webm/vp9", "libopus"},
		{"vp8 only", fakeProber{encoders: set("libvpx", "libopus")}, "webm/vp8", "libopus"},
		{"vp9 without opus drops audio", fakeProber{encoders: set("libvpx-vp9")}, "webm/vp9", ""},
		{"probe failure", fakeProber{err: errors.New("boom")}, "avi/mjpeg", ""},
		{"no prober", nil, "avi/mjpeg", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Negotiate(context.Background(), zerolog.Nop(), tt.prober, DefaultCandidates)
			require.True(t, c.Available)
			assert.Equal(t, tt.want, c.Config.Name)
			assert.Equal(t, tt.wantAudio, c.Config.AudioCodec)
		})
	}
}

func TestNegotiateRespectsOrder(t *testing.T) {
	c := Negotiate(context.Background(), zerolog.Nop(), fakeProber{encoders: set("libx264", "aac", "libvpx-vp9")}, Select([]string{"mp4", "webm/vp9"}))
	require.True(t, c.Available)
	assert.Equal(t, "mp4", c.Config.Name)
	assert.Equal(t, "aac", c.Config.AudioCodec)
}

func TestNegotiateUnavailable(t *testing.T) {
	c := Negotiate(context.Background(), zerolog.Nop(), nil, Select([]string{"webm/vp9", "mp4"}))
	assert.False(t, c.Available)
}

func TestSelect(t *testing.T) {
	assert.Equal(t, DefaultCandidates, Select(nil))

	got := Select([]string{"avi/mjpeg", "betamax", "mp4"})
	require.Len(t, got, 2)
	assert.Equal(t, "avi/mjpeg", got[0].Name)
	assert.Equal(t, "mp4", got[1].Name)
}

func TestNewValidatesOptions(t *testing.T) {
	cfg, _ := Lookup("avi/mjpeg")
	_, err := New(zerolog.Nop(), nil, cfg, Options{Width: 0, Height: 10, FPS: 30})
	assert.Error(t, err)

	webm, _ := Lookup("webm/vp9")
	_, err = New(zerolog.Nop(), nil, webm, Options{Width: 10, Height: 10, FPS: 30})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func collect(s Sink) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		var all bytes.Buffer
		for c := range s.Chunks() {
			all.Write(c)
		}
		out <- all.Bytes()
	}()
	return out
}

func TestMJPEGSinkProducesAVI(t *testing.T) {
	cfg, _ := Lookup("avi/mjpeg")
	s, err := New(zerolog.Nop(), nil, cfg, Options{Width: 32, Height: 16, FPS: 30})
	require.NoError(t, err)

	assert.ErrorIs(t, s.AttachAudio("src.mp4"), ErrNoAudio)
	require.NoError(t, s.Start(context.Background()))
	out := collect(s)

	frame := compositor.NewSurface(32, 16)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.WriteFrame(frame))
	}
	require.NoError(t, s.Stop(context.Background()))

	data := <-out
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
}

func TestMJPEGSinkAbortEmitsNothing(t *testing.T) {
	cfg, _ := Lookup("avi/mjpeg")
	s, err := New(zerolog.Nop(), nil, cfg, Options{Width: 8, Height: 8, FPS: 30})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	out := collect(s)

	require.NoError(t, s.WriteFrame(compositor.NewSurface(8, 8)))
	require.NoError(t, s.Abort())
	assert.Empty(t, <-out)
	assert.NoError(t, s.Stop(context.Background()), "stop after abort is a no-op")
}

func TestWriteRGBASubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	var buf bytes.Buffer
	require.NoError(t, writeRGBA(&buf, sub))
	assert.Equal(t, 2*2*4, buf.Len())
	assert.Equal(t, img.Pix[img.PixOffset(1, 1)], buf.Bytes()[0])
	assert.Equal(t, img.Pix[img.PixOffset(1, 2)], buf.Bytes()[8])
}

func TestFFmpegSinkStreamsChunks(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
	ex, err := ffmpeg.New(zerolog.New(os.Stderr), ffmpeg.Options{})
	require.NoError(t, err)

	cfg := Config{Name: "avi/ffmpeg-mjpeg", Format: "avi", VideoCodec: "mjpeg"}
	s, err := New(zerolog.Nop(), ex, cfg, Options{Width: 32, Height: 16, FPS: 10})
	require.NoError(t, err)
	assert.ErrorIs(t, s.AttachAudio("src.mp4"), ErrNoAudio)

	require.NoError(t, s.Start(context.Background()))
	out := collect(s)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.WriteFrame(compositor.NewSurface(32, 16)))
	}
	require.Error(t, s.WriteFrame(compositor.NewSurface(8, 8)))
	require.NoError(t, s.Stop(context.Background()))

	data := <-out
	require.Greater(t, len(data), 4)
	assert.Equal(t, "RIFF", string(data[:4]))
}
