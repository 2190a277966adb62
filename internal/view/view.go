package view

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hopwatch/internal/hopwin"
	"hopwatch/internal/monitor"
	"hopwatch/internal/series"
)

const (
	clearScreen = "\x1b[H\x1b[2J"
	labelWidth  = 32
	sparkWidth  = 40
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Printer renders snapshots as a text table with a latency sparkline per
// target. Colours follow the writer's terminal profile, so plain files and
// pipes get no escape codes.
type Printer struct {
	w      io.Writer
	clear  bool
	header lipgloss.Style
	label  lipgloss.Style
	muted  lipgloss.Style
	tiers  map[hopwin.Tier]lipgloss.Style
}

// NewPrinter writes frames to w. When clear is set each frame first homes the
// cursor and wipes the screen.
func NewPrinter(w io.Writer, clear bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		clear:  clear,
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FBBF24")),
		label:  r.NewStyle().Foreground(lipgloss.Color("#60A5FA")).Width(labelWidth).MaxWidth(labelWidth),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#626262")),
		tiers: map[hopwin.Tier]lipgloss.Style{
			hopwin.TierGood: r.NewStyle().Foreground(lipgloss.Color("#34D399")),
			hopwin.TierFair: r.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
			hopwin.TierPoor: r.NewStyle().Foreground(lipgloss.Color("#FB923C")),
			hopwin.TierBad:  r.NewStyle().Foreground(lipgloss.Color("#F87171")),
		},
	}
}

// Render writes one frame.
func (p *Printer) Render(s monitor.Snapshot) {
	var b strings.Builder
	if p.clear {
		b.WriteString(clearScreen)
	}
	b.WriteString(p.header.Render(fmt.Sprintf("%-*s %8s %8s %8s %8s %8s", labelWidth, "target", "last", "min", "avg", "max", "hop")))
	b.WriteByte('\n')

	for _, tv := range s.Targets {
		b.WriteString(p.label.Render(tv.Target.Label()))
		b.WriteByte(' ')
		if tv.Stats.Count == 0 {
			b.WriteString(p.muted.Render(fmt.Sprintf("%8s", "waiting")))
		} else {
			fmt.Fprintf(&b, "%8s %8s %8s %8s ", ms(tv.Stats.Last), ms(tv.Stats.Min), ms(tv.Stats.Avg), ms(tv.Stats.Max))
			b.WriteString(p.tiers[tv.Tier].Render(fmt.Sprintf("%8s", ms(tv.HopLatency))))
			b.WriteByte(' ')
			b.WriteString(Sparkline(tv.Points, s.YMin, s.YMax, sparkWidth))
		}
		b.WriteByte('\n')
	}
	b.WriteString(p.muted.Render(fmt.Sprintf("window %s .. %s", s.XMin.Format(time.TimeOnly), s.XMax.Format(time.TimeOnly))))
	b.WriteByte('\n')
	_, _ = io.WriteString(p.w, b.String())
}

// Sparkline draws the last width points scaled between lo and hi
// milliseconds.
func Sparkline(points []series.Point, lo, hi float64, width int) string {
	if len(points) > width {
		points = points[len(points)-width:]
	}
	span := hi - lo
	out := make([]rune, len(points))
	for i, pt := range points {
		level := 0
		if span > 0 {
			level = int((series.Millis(pt.Latency) - lo) / span * float64(len(sparkRunes)-1))
		}
		level = min(max(level, 0), len(sparkRunes)-1)
		out[i] = sparkRunes[level]
	}
	return string(out)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", series.Millis(d))
}
