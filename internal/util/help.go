package util

import "github.com/fatih/color"

var green = color.New(color.FgGreen).SprintFunc()
var yellow = color.New(color.FgYellow).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()
var whiteBold = color.New(color.FgWhite, color.Bold).SprintFunc()

// GenerateHelpSection returns a colored section for long command help.
func GenerateHelpSection(title string, body string) string {
	return green(title) + "\n\n" + whiteBold(body)
}

// Applied formats a line for a statement that was executed.
func Applied(msg string) string {
	return green("✔ ") + msg
}

// Advisory formats a line for a non-fatal failure.
func Advisory(msg string) string {
	return yellow("! ") + msg
}

// Failed formats a line for a fatal failure.
func Failed(msg string) string {
	return red("✘ ") + msg
}
