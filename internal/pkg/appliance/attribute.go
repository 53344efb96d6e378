package appliance

import (
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// LockTimeout is how long a value pushed from a command is protected
// from telemetry updates
const LockTimeout = 10 * time.Second

// Attribute is one telemetry value of an appliance
type Attribute struct {
	value      string
	lastUpdate time.Time
	lockedAt   time.Time
	clock      func() time.Time
}

// NewAttribute builds an attribute from a {parNewVal, lastUpdate} payload
func NewAttribute(data map[string]interface{}, clock func() time.Time) *Attribute {
	if clock == nil {
		clock = time.Now
	}

	a := &Attribute{clock: clock}
	a.Update(data, false)
	return a
}

func (a *Attribute) Value() string {
	return a.value
}

// Float returns the value as a number when it is one
func (a *Attribute) Float() (float64, bool) {
	f, err := parameter.StrToFloat(a.value)
	return f, err == nil
}

func (a *Attribute) LastUpdate() time.Time {
	return a.lastUpdate
}

// Locked reports whether the attribute is shielded from telemetry
func (a *Attribute) Locked() bool {
	return !a.lockedAt.IsZero() && a.clock().Sub(a.lockedAt) < LockTimeout
}

// Update applies a telemetry payload.  Unshielded updates are dropped
// while the attribute is locked; a shielded update always applies and
// renews the lock.
func (a *Attribute) Update(data map[string]interface{}, shield bool) bool {
	if !a.accept(shield) {
		return false
	}

	a.value = parameter.ToString(data["parNewVal"])
	if raw := parameter.ToString(data["lastUpdate"]); raw != "" {
		if dt, err := strfmt.ParseDateTime(raw); err == nil {
			a.lastUpdate = time.Time(dt)
		} else {
			a.lastUpdate = time.Time{}
		}
	}
	return true
}

// SetValue replaces the value, with the same lock rules as Update
func (a *Attribute) SetValue(value string, shield bool) bool {
	if !a.accept(shield) {
		return false
	}

	a.value = value
	return true
}

func (a *Attribute) accept(shield bool) bool {
	if shield {
		a.lockedAt = a.clock()
		return true
	}
	return !a.Locked()
}

func (a *Attribute) String() string {
	return a.value
}
