// Package serve implements the serve command: an HTTP server in front of a single
// hybrid cache of byte values.
package serve
