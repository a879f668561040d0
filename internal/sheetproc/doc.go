// Package sheetproc ships the stand-in stage processors bundled with the
// daemon. They derive every output deterministically from file metadata (path
// hash and size), so the binary runs the full pipeline end to end without OCR
// or grading models. Real recognition backends plug in by supplying a
// different pipeline.ProcessorSet to the workflow manager.
package sheetproc
