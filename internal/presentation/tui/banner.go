package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the netviz banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, hex string
	}{
		{"              _         _     ", "#818cf8"},
		{"  _ __   ___ | |_ __ __(_)____", "#a78bfa"},
		{" | '_ \\ / _ \\| __|\\ V /| |_  /", "#c084fc"},
		{" | | | |  __/| |_  \\ / | |/ / ", "#e879f9"},
		{" |_| |_|\\___| \\__|  V  |_/___|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.hex)))
	}
	fmt.Fprintln(w)
}
