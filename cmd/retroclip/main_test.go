package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

func TestProgressPrinterSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	show := progressPrinter(&buf, 10*time.Second)

	show(export.Progress{Phase: export.PhaseRecording, Fraction: 0.5})
	show(export.Progress{Phase: export.PhaseRecording, Fraction: 0.5})
	show(export.Progress{Phase: export.PhaseRecording, Fraction: 1})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\r"))
	assert.Contains(t, out, " 50%  0:05 / 0:10")
	assert.Contains(t, out, "100%  0:10 / 0:10")
}

func TestPlaceUsesPresets(t *testing.T) {
	a := &app{logger: zerolog.Nop(), positions: overlay.NewRegistry()}
	ed := state.New()

	require.NoError(t, a.place(ed, state.DragTitle, overlay.TopLeft))
	assert.Equal(t, state.Position{X: 0.12, Y: 0.08}, ed.Title.Pos)

	require.NoError(t, a.place(ed, state.DragTimestamp, ""))
	assert.Equal(t, state.New().Timestamp.Pos, ed.Timestamp.Pos)

	err := a.place(ed, state.DragTimestamp, "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}
