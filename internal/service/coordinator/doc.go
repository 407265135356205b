// Package coordinator implements the alarm lifecycle state machine.
//
// All state is owned by the goroutine running Run. Timers, the keyboard
// callback, the daily trigger and the sleep command post closures into a
// single inbox, so every transition is applied in order and the loser of the
// cancel-versus-deadline race is recognized and dropped. Observers are called
// on that goroutine in emission order. Read-only queries are served from a
// mutex-guarded snapshot and never enter the loop.
package coordinator
