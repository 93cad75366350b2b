package color

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Semantic styles for lifecycle states and table chrome.
var (
	OKStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "166", Dark: "214"})
	ErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"})
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "245"})
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
)

// Initialize sets the background the adaptive colors are resolved against.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// InitializeFromEnv applies STACKCTL_THEME ("dark" or "light") when set and
// leaves terminal detection alone otherwise.
func InitializeFromEnv() {
	switch strings.ToLower(os.Getenv("STACKCTL_THEME")) {
	case "dark":
		Initialize(true)
	case "light":
		Initialize(false)
	}
}
