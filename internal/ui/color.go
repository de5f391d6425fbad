package ui

import (
	"github.com/pterm/pterm"
)

// DarkTheme selects the light variants of the status colours.
var DarkTheme bool

// Success colours registered entries and totals.
func Success(a any) string {
	if DarkTheme {
		return pterm.LightGreen(a)
	}

	return pterm.Green(a)
}

// Waiting colours segments that wait for the user.
func Waiting(a any) string {
	if DarkTheme {
		return pterm.LightCyan(a)
	}

	return pterm.Cyan(a)
}

// Failure colours errors and failed registrations.
func Failure(a any) string {
	if DarkTheme {
		return pterm.LightRed(a)
	}

	return pterm.Red(a)
}
