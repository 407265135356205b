// Package console is the interactive control surface of the alarm.
//
// It offers the tray menu (start, stop, settings, exit) as shell commands,
// prints lifecycle events as they happen and lends its input to the
// cancellation listener while the alarm rings.
package console
