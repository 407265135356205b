// Package daemon wires the alarm components together and runs them.
//
// Headless mode reads cancellation keys from standard input. Interactive mode
// runs the console, which then owns the terminal for both commands and keys.
package daemon
