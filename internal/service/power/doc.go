// Package power suspends the machine when an alarm goes unanswered.
//
// The suspend command depends on the method and the operating system:
// PowerShell SetSuspendState or rundll32 on Windows, systemctl suspend on
// Linux, pmset sleepnow on macOS, a plain shutdown, or a custom command line.
package power
