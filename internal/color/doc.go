// Package color holds the terminal styles used by stackctl's tables.
//
// Styles use lipgloss adaptive colors so they read on dark and light
// terminals alike. Terminal capability detection, including NO_COLOR, is left
// to lipgloss.
//
// # Environment Variables
//
//   - STACKCTL_THEME: force the "dark" or "light" palette
package color
