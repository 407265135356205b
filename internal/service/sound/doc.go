// Package sound plays the alarm with a hard duration cap.
//
// Player owns the session and the cap timer. Audio output is delegated to a
// Backend: BeepBackend decodes wav and mp3 with github.com/faiface/beep, and
// CommandBackend relaunches an external player such as afplay or aplay.
package sound
