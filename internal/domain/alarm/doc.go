// Package alarm contains core domain types for the alarm lifecycle.
//
// It defines Cycle (one ring, cancel-or-sleep and recovery pass), State (the
// coordinator state machine), LifecycleEvent (what observers receive) and the
// error taxonomy shared by all services.
package alarm
