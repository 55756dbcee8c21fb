package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gethiox/rc10r/internal/pkg/config"
	"github.com/gethiox/rc10r/internal/pkg/rc10r"
	"github.com/gethiox/rc10r/internal/pkg/transport"
	"github.com/muesli/termenv"
)

// overview renders the projected pedal state as a small panel.
type overview struct {
	kits []config.Kit

	frame  lipgloss.Style
	title  lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	active lipgloss.Style
	warn   lipgloss.Style
}

func newOverview(w io.Writer, colors bool, kits []config.Kit) *overview {
	r := lipgloss.NewRenderer(w)
	if !colors {
		r.SetColorProfile(termenv.Ascii)
	}
	return &overview{
		kits:   kits,
		frame:  r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#555")).Padding(0, 1),
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#fa8")),
		label:  r.NewStyle().Foreground(lipgloss.Color("#888")).Width(8),
		dim:    r.NewStyle().Foreground(lipgloss.Color("#555")),
		active: r.NewStyle().Foreground(lipgloss.Color("#8f8")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("#f55")),
	}
}

func (o *overview) track(t rc10r.TrackState) string {
	s := t.Status.String()
	switch t.Status {
	case rc10r.Recording, rc10r.Overdubbing:
		s = o.warn.Render(s)
	case rc10r.Playing:
		s = o.active.Render(s)
	default:
		s = o.dim.Render(s)
	}
	if t.HasContent {
		s += " *"
	}
	return s
}

func (o *overview) beat(b rc10r.BeatClockState) string {
	if !b.Receiving {
		return o.dim.Render("no clock")
	}

	var cells []string
	for i := 1; i <= rc10r.BeatsPerBar; i++ {
		switch {
		case i == b.CurrentBeat && b.IsPlaying:
			cells = append(cells, o.active.Render("●"))
		case i == b.CurrentBeat:
			cells = append(cells, "●")
		default:
			cells = append(cells, o.dim.Render("○"))
		}
	}
	s := strings.Join(cells, " ")
	if b.Tempo > 0 {
		s += fmt.Sprintf("  %.1f BPM", b.Tempo)
	}
	if !b.IsPlaying {
		s += " " + o.dim.Render("(stopped)")
	}
	return s
}

func (o *overview) Render(s rc10r.DeviceState) string {
	if !s.Connected {
		return o.frame.Render(o.title.Render("RC-10R") + "\n" + o.warn.Render("not connected"))
	}

	rhythm := o.dim.Render("stopped")
	if s.Rhythm.Playing {
		rhythm = o.active.Render("playing")
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, o.label.Render(label), value)
	}

	return o.frame.Render(lipgloss.JoinVertical(lipgloss.Left,
		o.title.Render(s.DeviceName)+" "+o.dim.Render(s.Manufacturer),
		row("patch", fmt.Sprintf("%02d", s.Patch.Current+1)),
		row("track 1", o.track(s.Track1)),
		row("track 2", o.track(s.Track2)),
		row("rhythm", fmt.Sprintf("%s, %s, %d BPM", rhythm, config.KitName(o.kits, s.Rhythm.Kit), s.Rhythm.Tempo)),
		row("sync", s.SyncMode.String()),
		row("clock", o.beat(s.BeatClock)),
	))
}

// devices lists known devices, the active one is marked.
func (o *overview) Devices(devices []transport.Device, activeID string) string {
	if len(devices) == 0 {
		return o.dim.Render("no midi devices")
	}

	width := 0
	for _, d := range devices {
		width = max(width, rawStringLen(d.ID))
	}

	var lines []string
	for _, d := range devices {
		marker := " "
		if d.ID == activeID {
			marker = o.active.Render("*")
		}
		id := d.ID + strings.Repeat(" ", width-rawStringLen(d.ID))
		line := fmt.Sprintf("%s %s  %s", marker, id, d.String())
		if d.Manufacturer != "" {
			line += " " + o.dim.Render(d.Manufacturer)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
