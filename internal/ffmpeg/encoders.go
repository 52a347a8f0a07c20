package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Encoders lists the encoder names compiled into ffmpeg.
func (e *Executor) Encoders(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing encoders failed: %w", err)
	}

	encoders := parseEncoders(string(output))
	e.logger.Debug().Int("count", len(encoders)).Msg("encoders listed")
	return encoders, nil
}

// parseEncoders reads the table printed by -encoders. Rows follow a
// " ------" separator and start with a six-character capability column.
func parseEncoders(output string) map[string]bool {
	encoders := make(map[string]bool)
	inTable := false

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "------") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}

	return encoders
}
