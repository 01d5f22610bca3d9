// Package ui holds terminal styling for the gate CLI.
package ui

import "fmt"

// ANSI256 colors.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 71  // green
	colorWarn   = 178 // amber
	colorError  = 167 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor || s == "" {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name.
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderWarning returns s in the warning color.
func RenderWarning(s string) string { return paint(colorWarn, s) }

// RenderError returns s in the error color.
func RenderError(s string) string { return paint(colorError, s) }

// RenderStatus colors a document status.
func RenderStatus(status string) string {
	switch status {
	case "saved", "changed":
		return paint(colorOK, status)
	case "exited":
		return paint(colorAccent, status)
	case "cancelled":
		return paint(colorError, status)
	default:
		return paint(colorMuted, status)
	}
}

// RenderMessageType colors a system-of-record message type (S, W or E).
func RenderMessageType(t string) string {
	switch t {
	case "S":
		return paint(colorOK, t)
	case "W":
		return paint(colorWarn, t)
	case "E":
		return paint(colorError, t)
	}
	return t
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
