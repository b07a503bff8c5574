// Package export renders saved chat transcripts to text, markdown, JSON,
// or HTML for download from the console or the export CLI command.
package export
