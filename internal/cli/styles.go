// Package cli holds the terminal presentation of the jumpcutter binary:
// lipgloss styles, the run summary table, the styled help printer and the
// YAML configuration resolver for kong.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/maauso/jumpcutter/internal/apperr"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#D7263D")
	accentColor  = lipgloss.Color("#F49D37")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("jumpcutter ✂"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error to stderr, naming its kind and the failed
// stage when known.
func PrintError(err error) {
	FprintError(os.Stderr, err)
}

// FprintError writes the styled diagnostic for err to w.
func FprintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), err)
	if kind := apperr.Kind(err); kind != nil {
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Kind:"), ValueStyle.Render(kind.Error()))
	}
	if stage := apperr.StageOf(err); stage != "" {
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Stage:"), ValueStyle.Render(stage))
	}
}

// PrintResult reports where the output went.
func PrintResult(w io.Writer, outputPath, outputURL string) {
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Output:"), ValueStyle.Render(outputPath))
	if outputURL != "" {
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("URL:"), ValueStyle.Render(outputURL))
	}
}
