// Package api implements the Gin HTTP server of the intake backend: the
// submission endpoint, health and metrics probes, and optional serving of the
// built wizard.
package api
