// Package notify delivers a rendered summary to the client and the operator.
package notify
