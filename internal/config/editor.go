package config

import (
	"fmt"

	"github.com/kikiluvv/retroclip/internal/state"
)

// PositionLookup resolves a position preset name.
type PositionLookup func(name string) (state.Position, bool)

// Apply copies the editor defaults onto e.
func (c EditorConfig) Apply(e *state.Editor, positions PositionLookup) error {
	f, err := state.ParseFilter(c.Filter)
	if err != nil {
		return err
	}
	tf, err := state.ParseTimestampFormat(c.TimestampFormat)
	if err != nil {
		return err
	}
	e.Filter = f
	e.TimestampFormat = tf
	e.SetIntensity(c.Intensity)

	if err := c.Title.apply(&e.Title, positions); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if err := c.Timestamp.apply(&e.Timestamp, positions); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	return nil
}

func (t TextConfig) apply(l *state.TextLayer, positions PositionLookup) error {
	if t.Size > 0 {
		l.Size = t.Size
	}
	if t.Color != "" {
		l.Color = t.Color
	}
	l.Background = t.Background
	if t.Position == "" {
		return nil
	}
	if positions == nil {
		return fmt.Errorf("no position presets to resolve %q", t.Position)
	}
	pos, ok := positions(t.Position)
	if !ok {
		return fmt.Errorf("unknown position %q", t.Position)
	}
	l.Pos = pos.Clamped()
	return nil
}
