// Package submission runs one intake submission end to end: validation,
// duplicate guard, in-flight bound, rendering and notification.
package submission
