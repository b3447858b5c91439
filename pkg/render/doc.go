// Package render lays out an intake record and draws it as a paginated PDF
// summary, substituting built-in resources for missing fonts and logos.
package render
