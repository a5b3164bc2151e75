package tui

import "github.com/charmbracelet/lipgloss"

// Palette of the login screen.
var (
	PrimaryColor = lipgloss.Color("#00D4FF")
	SuccessColor = lipgloss.Color("#10B981")
	ErrorColor   = lipgloss.Color("#EF4444")
	WarningColor = lipgloss.Color("#F59E0B")
	TextColor    = lipgloss.Color("#E5E7EB")
	MutedColor   = lipgloss.Color("#9CA3AF")
	DimColor     = lipgloss.Color("#6B7280")
	BorderColor  = lipgloss.Color("#4B5563")
)

var (
	// TitleStyle is the screen title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SpinnerStyle colors the progress spinner.
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// URLStyle frames the authorization URL so it can be copied.
	URLStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	// LogStyle renders captured log lines.
	LogStyle = lipgloss.NewStyle().
			Foreground(DimColor)

	// HelpStyle renders the key help footer.
	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1)
)

// Result badges shown once the login settles.
var (
	SuccessBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(SuccessColor).
			Bold(true).
			Padding(0, 1)

	ErrorBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ErrorColor).
			Bold(true).
			Padding(0, 1)

	WarningBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(WarningColor).
			Bold(true).
			Padding(0, 1)
)

// Colorize applies a foreground color to text.
func Colorize(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func Success(text string) string { return Colorize(text, SuccessColor) }
func Error(text string) string   { return Colorize(text, ErrorColor) }
func Warning(text string) string { return Colorize(text, WarningColor) }
func Muted(text string) string   { return Colorize(text, MutedColor) }
