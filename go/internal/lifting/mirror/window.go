package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrWindowBlocked is returned when a mirror window cannot be opened.
var ErrWindowBlocked = errors.New("mirror window could not be opened; allow pop-ups for this site or check the display launcher")

// WindowSpec describes a mirror window to open.
type WindowSpec struct {
	URL      string
	Name     string
	Geometry Geometry
}

// Window is a handle on an opened mirror window.
type Window interface {
	Closed() bool
	Focus() error
	Close() error
}

// WindowOpener opens mirror windows.
type WindowOpener interface {
	Open(ctx context.Context, spec WindowSpec) (Window, error)
}

// ExecOpener launches a display process per window, typically a browser in
// app mode. Arguments may use the placeholders {url} {name} {width} {height}
// {left} and {top}.
type ExecOpener struct {
	Command string
	Args    []string
}

// DefaultExecOpener starts Chromium in app mode.
func DefaultExecOpener() *ExecOpener {
	return &ExecOpener{
		Command: "chromium",
		Args: []string{
			"--app={url}",
			"--new-window",
			"--window-size={width},{height}",
			"--window-position={left},{top}",
		},
	}
}

func (o *ExecOpener) Open(_ context.Context, spec WindowSpec) (Window, error) {
	if o.Command == "" {
		return nil, errors.New("no window command configured")
	}
	replacer := strings.NewReplacer(
		"{url}", spec.URL,
		"{name}", spec.Name,
		"{width}", strconv.Itoa(spec.Geometry.Width),
		"{height}", strconv.Itoa(spec.Geometry.Height),
		"{left}", strconv.Itoa(spec.Geometry.Left),
		"{top}", strconv.Itoa(spec.Geometry.Top),
	)
	args := make([]string, len(o.Args))
	for i, a := range o.Args {
		args[i] = replacer.Replace(a)
	}

	// The window outlives the request that opened it.
	cmd := exec.Command(o.Command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", o.Command, err)
	}

	w := &execWindow{cmd: cmd, name: spec.Name, done: make(chan struct{})}
	go w.wait()

	log.Info().
		Str("window", spec.Name).
		Str("url", spec.URL).
		Int("pid", cmd.Process.Pid).
		Msg("mirror window launched")

	return w, nil
}

type execWindow struct {
	cmd  *exec.Cmd
	name string

	once sync.Once
	done chan struct{}
}

func (w *execWindow) wait() {
	if err := w.cmd.Wait(); err != nil {
		log.Debug().Err(err).Str("window", w.name).Msg("mirror window process exited")
	}
	w.once.Do(func() { close(w.done) })
}

func (w *execWindow) Closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Done is closed when the window process exits.
func (w *execWindow) Done() <-chan struct{} { return w.done }

// Focus cannot raise a foreign process window portably; the launcher's own
// single-instance handling brings it forward when reopened.
func (w *execWindow) Focus() error {
	log.Debug().Str("window", w.name).Msg("mirror window already open")
	return nil
}

func (w *execWindow) Close() error {
	if w.Closed() {
		return nil
	}
	if err := w.cmd.Process.Signal(os.Interrupt); err != nil {
		return w.cmd.Process.Kill()
	}
	return nil
}
