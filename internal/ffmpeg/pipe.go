package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Pipe is a long-running ffmpeg process that exchanges raw data over stdin
// and stdout.
type Pipe struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	stderrDone chan struct{}
	mu         sync.Mutex
	lastLine   string

	waitOnce sync.Once
	waitErr  error
}

// PipeOptions selects which ends of the process are connected.
type PipeOptions struct {
	Args  []string
	Stdin bool
	// Name tags log lines from this process.
	Name string
}

// StartPipe launches ffmpeg with stdout connected and, optionally, stdin.
// Callers must drain Stdout before calling Wait.
func (e *Executor) StartPipe(ctx context.Context, opts PipeOptions) (*Pipe, error) {
	if len(opts.Args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	args := append(e.baseArgs("error"), opts.Args...)
	if !opts.Stdin {
		args = append([]string{"-nostdin"}, args...)
	}

	logger := e.logger.With().Str("pipe", opts.Name).Logger()
	logger.Debug().Strs("args", args).Msg("starting ffmpeg pipe")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	p := &Pipe{logger: logger, cmd: cmd, stderrDone: make(chan struct{})}

	var err error
	if opts.Stdin {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
	}
	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		defer close(p.stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			logger.Debug().Str("ffmpeg", line).Msg("pipe output")
			p.mu.Lock()
			p.lastLine = line
			p.mu.Unlock()
		}
	}()

	return p, nil
}

// Stdin returns the process input. It is nil unless requested.
func (p *Pipe) Stdin() io.Writer {
	return p.stdin
}

// Stdout returns the process output.
func (p *Pipe) Stdout() io.Reader {
	return p.stdout
}

// CloseInput signals end of input.
func (p *Pipe) CloseInput() error {
	if p.stdin == nil {
		return nil
	}
	return p.stdin.Close()
}

// Kill terminates the process without waiting for it to flush.
func (p *Pipe) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Wait reaps the process. The last stderr line is attached to any failure.
func (p *Pipe) Wait() error {
	p.waitOnce.Do(func() {
		<-p.stderrDone
		err := p.cmd.Wait()
		if err == nil {
			return
		}
		var exitErr *exec.ExitError
		p.mu.Lock()
		last := p.lastLine
		p.mu.Unlock()
		if errors.As(err, &exitErr) && last != "" {
			err = fmt.Errorf("%w: %s", err, last)
		}
		p.waitErr = err
	})
	return p.waitErr
}
