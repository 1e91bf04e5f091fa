// Package feedback implements the sheet-to-store resolution loop: a
// window-gated read of the human resolution marks, a diff against the
// store, change classification, and a controlled apply with an audit
// trail.
package feedback

import (
	"time"

	"github.com/pkg/errors"
)

const (
	_windowTimezone  = "Europe/Madrid"
	_windowStartHour = 3
	_windowEndHour   = 6
)

// Gate decides whether feedback may touch the store right now. Writes
// are confined to the early-morning window so humans never race the
// loop while editing the sheet.
type Gate struct {
	loc   *time.Location
	nowFn func() time.Time
}

// NewGate loads the window's time zone.
func NewGate() (*Gate, error) {
	loc, err := time.LoadLocation(_windowTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %s", _windowTimezone)
	}
	return &Gate{loc: loc, nowFn: time.Now}, nil
}

// Open reports whether the current local hour is inside [03, 06).
func (g *Gate) Open() bool {
	hour := g.nowFn().In(g.loc).Hour()
	return hour >= _windowStartHour && hour < _windowEndHour
}
