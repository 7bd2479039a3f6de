// Package middleware provides HTTP request logging for the metrics endpoint
// served in watch mode. Lines are emitted at debug level with user-supplied
// fields stripped of control characters.
package middleware
