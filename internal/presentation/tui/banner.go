// Package tui renders assistant replies and the chat banner for terminals.
package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`                      _           _   `, "#34d399"},
	{`  ___ __ _ _ __ ___  | |__   ___ | |_ `, "#2dd4bf"},
	{` / __/ _' | '__/ _ \ | '_ \ / _ \| __|`, "#22d3ee"},
	{`| (_| (_| | | |  __/ | |_) | (_) | |_ `, "#38bdf8"},
	{` \___\__,_|_|  \___| |_.__/ \___/ \__|`, "#60a5fa"},
}

// PrintBanner writes the chat banner and the version line to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  patient records assistant v"+version).Faint())
	fmt.Fprintln(w)
}
