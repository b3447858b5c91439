// SPDX-FileCopyrightText: 2026 MonCoffretElec
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns a fallback sugared logger derived from the provided zap.Logger.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// SetReqLogger stores the request-scoped logger in the gin context.
func SetReqLogger(c *gin.Context, l *zap.SugaredLogger) {
	if c == nil || l == nil {
		return
	}
	c.Set(ReqLoggerKey, l)
}

// SubmissionFields returns key/value pairs identifying a submission in logs.
// The client email is always masked; an empty id is omitted.
func SubmissionFields(id, email string) []interface{} {
	fields := []interface{}{"client", MaskEmail(email)}
	if id != "" {
		fields = append(fields, "submissionID", id)
	}
	return fields
}
