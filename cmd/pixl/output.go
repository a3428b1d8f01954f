package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/srg/pixl/internal/session"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var (
	clicksColor = color.New(color.FgYellow, color.Bold)
	tempColor   = color.New(color.FgCyan)
	dateColor   = color.New(color.FgGreen)
)

// eventPrinter renders session events as aligned text or JSON lines.
type eventPrinter struct {
	out    io.Writer
	format string
}

// jsonEvent is one line of --format json output.
type jsonEvent struct {
	Event   string   `json:"event"`
	At      string   `json:"at"`
	Count   *int     `json:"count,omitempty"`
	Celsius *float64 `json:"celsius,omitempty"`
	Date    string   `json:"date,omitempty"`
}

func newEventPrinter(out io.Writer, format string) (*eventPrinter, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case formatText, formatJSON:
		return &eventPrinter{out: out, format: format}, nil
	default:
		return nil, fmt.Errorf("invalid format %q: use text or json", format)
	}
}

func (p *eventPrinter) Print(ev session.Event) error {
	if p.format == formatJSON {
		return p.printJSON(ev)
	}

	label := fmt.Sprintf("%-12s", ev.Kind)
	var err error
	switch ev.Kind {
	case session.EventClickCountUpdate:
		_, err = fmt.Fprintf(p.out, "%s %s\n", label, clicksColor.Sprint(ev.ClickCount))
	case session.EventTemperatureUpdate:
		_, err = fmt.Fprintf(p.out, "%s %s\n", label, tempColor.Sprintf("%.1f °C", ev.Celsius))
	case session.EventDateUpdate:
		_, err = fmt.Fprintf(p.out, "%s %s\n", label, dateColor.Sprint(ev.Date.Format(time.RFC3339)))
	}
	return err
}

func (p *eventPrinter) printJSON(ev session.Event) error {
	line := jsonEvent{
		Event: ev.Kind.String(),
		At:    ev.At.Format(time.RFC3339Nano),
	}
	switch ev.Kind {
	case session.EventClickCountUpdate:
		count := ev.ClickCount
		line.Count = &count
	case session.EventTemperatureUpdate:
		celsius := ev.Celsius
		line.Celsius = &celsius
	case session.EventDateUpdate:
		line.Date = ev.Date.Format(time.RFC3339)
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(p.out, "%s\n", data)
	return err
}
