// Package platform detects whether the server runs on a local desktop
// machine, which decides whether generated images are written to disk.
package platform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrUnavailable is returned by a Source that cannot introspect the processor.
var ErrUnavailable = errors.New("processor identifier unavailable")

// Source reports the processor identifier of the host.
type Source func() (string, error)

type Probe struct {
	source    Source
	substring string
	logger    *slog.Logger
}

func NewProbe(source Source, substring string, logger *slog.Logger) *Probe {
	if source == nil {
		source = DefaultSource
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		source:    source,
		substring: substring,
		logger:    logger,
	}
}

// OnLocal reports whether the processor identifier contains the configured
// substring. It never panics: any failure of the source counts as false.
func (p *Probe) OnLocal() (onLocal bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("running on cloud", "reason", fmt.Sprint(r))
			onLocal = false
		}
	}()

	id, err := p.source()
	if err != nil {
		p.logger.Warn("running on cloud", "reason", err.Error())
		return false
	}
	if p.substring == "" {
		return false
	}
	return strings.Contains(id, p.substring)
}

// DefaultSource reads PROCESSOR_IDENTIFIER (set on Windows desktops) and
// falls back to the first "model name" entry of /proc/cpuinfo.
func DefaultSource() (string, error) {
	if v := strings.TrimSpace(os.Getenv("PROCESSOR_IDENTIFIER")); v != "" {
		return v, nil
	}
	return cpuinfoModel("/proc/cpuinfo")
}

func cpuinfoModel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(val), nil
		}
	}
	return "", ErrUnavailable
}
