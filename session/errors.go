/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"errors"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrNotConnected     = errors.New("not connected to a display")
	ErrRemoteRejected   = errors.New("rejected by display")
)

// ErrorReporter is the one place user-visible failures end up. retry is
// nil when there is nothing sensible to retry.
type ErrorReporter interface {
	ReportError(err error, retry func())
}

type ReporterFunc func(err error, retry func())

func (f ReporterFunc) ReportError(err error, retry func()) {
	f(err, retry)
}

type discardReporter struct{}

func (discardReporter) ReportError(error, func()) {}
