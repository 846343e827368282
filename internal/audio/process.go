/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultStopGrace is how long a player gets to exit after an interrupt.
const defaultStopGrace = 5 * time.Second

// ProcessConfig configures an external player such as ffplay or mpg123.
type ProcessConfig struct {
	Bin       string
	Args      []string // placed before the file path
	StopGrace time.Duration
}

// ProcessBackend plays files by running an external player, one process
// per track.
type ProcessBackend struct {
	bin       string
	args      []string
	stopGrace time.Duration
	available bool
	logger    zerolog.Logger

	mu      sync.Mutex
	current *playerProcess
}

type playerProcess struct {
	cmd     *exec.Cmd
	path    string
	started time.Time
	done    chan struct{}
	err     error
}

func (p *playerProcess) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// NewProcessBackend resolves the player binary. A missing binary leaves the
// backend unavailable rather than failing construction.
func NewProcessBackend(cfg ProcessConfig, logger zerolog.Logger) *ProcessBackend {
	logger = logger.With().Str("component", "audio").Str("player", cfg.Bin).Logger()

	bin, err := exec.LookPath(cfg.Bin)
	available := err == nil
	if !available {
		logger.Warn().Err(err).Msg("audio player not found, playback disabled")
		bin = cfg.Bin
	}

	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}

	return &ProcessBackend{
		bin:       bin,
		args:      append([]string(nil), cfg.Args...),
		stopGrace: grace,
		available: available,
		logger:    logger,
	}
}

// Available reports whether the player binary was found.
func (b *ProcessBackend) Available() bool {
	return b.available
}

// Play starts the player on path. A running player is stopped first.
func (b *ProcessBackend) Play(path string) error {
	if !b.available {
		return ErrUnavailable
	}

	b.mu.Lock()
	previous := b.current
	b.mu.Unlock()
	if previous != nil && previous.running() {
		b.logger.Info().Str("path", previous.path).Msg("stopping previous track")
		b.stopProcess(previous)
	}

	args := append(append([]string(nil), b.args...), path)
	cmd := exec.Command(b.bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("player stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}

	proc := &playerProcess{
		cmd:     cmd,
		path:    path,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.current = proc
	b.mu.Unlock()

	b.logger.Debug().Int("pid", cmd.Process.Pid).Str("path", path).Msg("player started")
	go b.monitor(proc, stderr)
	return nil
}

// Busy reports whether the last started player is still running.
func (b *ProcessBackend) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && b.current.running()
}

// Current returns the path of the running track, or "".
func (b *ProcessBackend) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || !b.current.running() {
		return ""
	}
	return b.current.path
}

// Stop interrupts the current player and kills it after the grace period.
func (b *ProcessBackend) Stop() {
	b.mu.Lock()
	proc := b.current
	b.mu.Unlock()
	if proc == nil {
		return
	}
	b.stopProcess(proc)
}

func (b *ProcessBackend) stopProcess(proc *playerProcess) {
	if !proc.running() {
		return
	}

	if err := proc.cmd.Process.Signal(os.Interrupt); err != nil {
		b.logger.Debug().Err(err).Msg("failed to interrupt player")
	}

	select {
	case <-proc.done:
	case <-time.After(b.stopGrace):
		b.logger.Warn().Str("path", proc.path).Msg("player ignored interrupt, killing")
		if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			b.logger.Error().Err(err).Msg("failed to kill player")
		}
		<-proc.done
	}
}

// monitor drains stderr, then reaps the process.
func (b *ProcessBackend) monitor(proc *playerProcess, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		b.logger.Debug().Str("path", proc.path).Str("stderr", scanner.Text()).Msg("player output")
	}

	proc.err = proc.cmd.Wait()
	close(proc.done)

	elapsed := time.Since(proc.started)
	if proc.err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(proc.err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		b.logger.Debug().Err(proc.err).Int("exit_code", exitCode).Dur("elapsed", elapsed).Str("path", proc.path).Msg("player exited")
		return
	}
	b.logger.Debug().Dur("elapsed", elapsed).Str("path", proc.path).Msg("player finished")
}
