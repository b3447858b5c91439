// Package cli builds the coffret command tree: serve runs the HTTP API,
// render produces a summary PDF from a JSON record without sending mail,
// check reports configuration problems and version prints build metadata.
package cli
