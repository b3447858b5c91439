// Package mail sends plain text notifications with attachments over SMTP.
package mail
