// Package integration runs nodes against a real broker over websockets.
package integration
