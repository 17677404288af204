//go:build unix && !linux

package taskio

import (
	"errors"

	"github.com/wwqgtxx/fdsplice/monitor"
	"github.com/wwqgtxx/fdsplice/task"
)

const spliceSupported = false

func newSplicePump(t *task.Task, size int, role monitor.Role, mon *monitor.Monitor) (pump, error) {
	return nil, errors.ErrUnsupported
}
