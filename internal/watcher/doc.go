// Package watcher keeps the derivative tree up to date in long-running mode.
//
// After an initial run it watches the source tree with fsnotify, adding new
// directories as they appear, and re-runs the whole pipeline once the tree
// has been quiet for the debounce window. Runs never overlap: changes seen
// during a run schedule a single follow-up run.
package watcher
