// Command gallery-pipeline turns a dated photo archive into a static web
// gallery's raw material: for every <source>/<year>/<month>/<name>.<ext> it
// writes a square thumbnail, a bounded preview and a normalized metadata
// JSON file.
//
// Usage:
//
//	gallery-pipeline [run] [--config gallery.yaml] [--source DIR] [--output DIR]
//	gallery-pipeline watch
//	gallery-pipeline version
//
// See package internal/startup for the configuration keys and environment
// variables.
package main

import "gallery-pipeline/internal/cli"

func main() {
	cli.Execute()
}
