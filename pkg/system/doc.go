// Package system holds process-wide helpers shared by the HTTP layer and the
// workers: logger construction, request-scoped loggers and PII masking.
package system
