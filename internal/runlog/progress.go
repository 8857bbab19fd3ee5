package runlog

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"
)

// Progress renders a bar advanced once per task. It is purely
// observational: write failures are ignored.
type Progress struct {
	bar     progress.Model
	out     io.Writer
	total   int
	done    int
	enabled bool
}

// NewProgress draws to stderr, and only when stderr is a terminal
func NewProgress(total int) *Progress {
	return newProgress(os.Stderr, total, term.IsTerminal(int(os.Stderr.Fd())))
}

func newProgress(out io.Writer, total int, enabled bool) *Progress {
	return &Progress{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		out:     out,
		total:   total,
		enabled: enabled && total > 0,
	}
}

// Advance marks one more task processed
func (p *Progress) Advance() {
	if p.done < p.total {
		p.done++
	}
	p.render()
}

// Done finishes the line so later output starts cleanly
func (p *Progress) Done() {
	if p.enabled {
		_, _ = fmt.Fprintln(p.out)
	}
}

func (p *Progress) render() {
	if !p.enabled {
		return
	}
	frac := float64(p.done) / float64(p.total)
	_, _ = fmt.Fprintf(p.out, "\r\033[KProcessing consultation tasks %s %d/%d", p.bar.ViewAs(frac), p.done, p.total)
}
