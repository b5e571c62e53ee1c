// Package diagnostics captures unrecognized screens for offline
// debugging. Tree dumps are zstd-compressed XML; screenshots keep the
// extension of their detected content type.
package diagnostics
