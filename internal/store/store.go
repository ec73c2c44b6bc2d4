// Package store holds the bot's state: applicant sessions and submitted
// forms, engagements, the handle directory, review history and the form
// archive. Every record is keyed by applicant id or responder handle, so
// operations on different keys never touch the same record.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record exists for the key.
var ErrNotFound = errors.New("store: not found")

const keyPrefix = "helpdesk"

func sessionKey(applicantID int64) string {
	return fmt.Sprintf("%s:session:%d", keyPrefix, applicantID)
}

func formKey(applicantID int64) string {
	return fmt.Sprintf("%s:form:%d", keyPrefix, applicantID)
}

func engagementKey(applicantID int64) string {
	return fmt.Sprintf("%s:engagement:%d", keyPrefix, applicantID)
}

func handleKey(key string) string {
	return fmt.Sprintf("%s:handle:%s", keyPrefix, key)
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
