// Package fetch executes one attempt of a download task: resolve, gate,
// select streams, download to a scratch directory, transcode and commit the
// result under its final name.
package fetch
