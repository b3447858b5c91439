// Package intake defines the intake record submitted by the configuration
// wizard and the placeholder rules used when rendering it.
package intake
