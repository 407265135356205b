// Package keyboard turns a key press into an alarm cancellation.
package keyboard
