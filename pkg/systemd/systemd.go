// Package systemd reports service state over the sd_notify socket.
// Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "msgsim/pkg/logx"
)

type Notifier struct {
	log logx.Logger

	// Set after the first send that found no socket.
	disabled atomic.Bool
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log.With(logx.String("comp", "systemd"))}
}

func (n *Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) bool { return n.send("STATUS=" + s) }

func (n *Notifier) send(state string) bool {
	if n.disabled.Load() {
		return false
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if !sent {
		n.disabled.Store(true)
	}
	return sent
}
