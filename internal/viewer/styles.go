package viewer

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#E0AF68")
	colorTag    = lipgloss.Color("#7DCFFF")
	colorGray   = lipgloss.Color("#666666")
	colorDim    = lipgloss.Color("#444444")
	colorWhite  = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	quoteStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Italic(true).
			Padding(1, 4)

	authorStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingLeft(4)

	activeTagStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTag)

	candidateStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	coverStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	busyStyle = lipgloss.NewStyle().
			Foreground(colorAccent)
)
