// Package walker enumerates source photographs laid out as
// <root>/<year>/<month>/<name>.<ext>.
//
// Walks are lazy: assets are sent on a channel as they are found, so the
// pipeline starts work before the tree has been fully read. Files outside a
// year/month directory or with an extension that is not allow-listed are
// reported through Config.OnSkip and never stop the walk. Hidden files and
// directories are ignored.
package walker
