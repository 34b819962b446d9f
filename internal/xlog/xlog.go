// Package xlog sets up the coordinator's structured logger.
//
// Adapted from the teacher's NewLog()/srv.log idiom in
// network/p2p/server.go ("srv.log = srv.Config.Logger; if srv.log == nil {
// srv.log = NewLog() }"), using the teacher's own sirupsen/logrus.
package xlog

import "github.com/sirupsen/logrus"

// New builds a *logrus.Entry tagged with the given component name, the way
// network/p2p/server.go tags every log line it emits with peer/task fields.
func New(component string) *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return l.WithField("component", component)
}
