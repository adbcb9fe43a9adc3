package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultWrap = 80

// terminalWidth returns the width of stdout, or defaultWrap when stdout is
// not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultWrap
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWrap
	}
	return w
}

// renderMarkdown renders md for the terminal. Piped output stays plain.
func renderMarkdown(md string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()-4),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printBanner(w io.Writer, addr string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{`  _ __   _____  ___   _ ___ `, "#818cf8"},
		{` | '_ \ / _ \ \/ / | | / __|`, "#a78bfa"},
		{` | | | |  __/>  <| |_| \__ \`, "#c084fc"},
		{` |_| |_|\___/_/\_\\__,_|___/`, "#e879f9"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, termenv.String("  panel listening on "+addr).Faint())
	fmt.Fprintln(w)
}
