/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// User facing messages. The wizard displays them verbatim.
const (
	MsgSent           = "Emails envoyés avec succès !"
	MsgBadRequest     = "Requête invalide"
	MsgEmailRequired  = "Email client requis"
	MsgEmailInvalid   = "Email client invalide"
	MsgDuplicate      = "Demande déjà envoyée"
	MsgBusy           = "Service occupé, réessayez plus tard"
	MsgTooManyRequest = "Trop de requêtes, réessayez plus tard"
	MsgSendFailed     = "Erreur envoi email"
)

// Envelope is the body of every /send response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RespondSuccess sends a 200 OK envelope.
func RespondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// RespondBadRequest sends a 400 Bad Request envelope.
// Use this for malformed bodies and invalid client input.
func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Message: message})
}

// RespondConflict sends a 409 Conflict envelope.
func RespondConflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Envelope{Message: message})
}

// RespondTooManyRequests sends a 429 envelope.
func RespondTooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Envelope{Message: MsgTooManyRequest})
}

// RespondServiceUnavailable sends a 503 envelope.
func RespondServiceUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Envelope{Message: message})
}

// RespondInternalError sends a 500 envelope. It logs the error with full
// details but only returns message to the client.
func RespondInternalError(c *gin.Context, message string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw("Request failed", "status", http.StatusInternalServerError, "error", err)
	}
	c.JSON(http.StatusInternalServerError, Envelope{Message: message})
}

// RespondPayloadTooLarge sends a 413 envelope for bodies over the size cap.
func RespondPayloadTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, Envelope{Message: MsgBadRequest})
}
