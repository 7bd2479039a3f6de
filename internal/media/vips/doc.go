// Package vips provides the general image backend, built on libvips through
// govips. Call Init (or New) once before use and Shutdown at exit; libvips
// cannot be restarted within a process.
package vips
