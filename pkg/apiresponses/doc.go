// Package apiresponses provides the JSON envelope returned by the intake API
// and helpers to send it with the matching status code.
package apiresponses
