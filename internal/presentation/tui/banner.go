package tui

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// PrintBanner outputs the hive banner when stdout is a terminal.
func PrintBanner() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	p := termenv.ColorProfile()
	s1 := termenv.String(" _     _           ").Foreground(p.Color("#fbbf24"))
	s2 := termenv.String("| |__ (_)_   _____ ").Foreground(p.Color("#f59e0b"))
	s3 := termenv.String("| '_ \\| \\ \\ / / _ \\").Foreground(p.Color("#d97706"))
	s4 := termenv.String("| | | | |\\ V /  __/").Foreground(p.Color("#b45309"))
	s5 := termenv.String("|_| |_|_| \\_/ \\___|").Foreground(p.Color("#92400e"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}
