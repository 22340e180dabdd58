package session

import (
	"github.com/alarmweave/alarmweave/pkg/alarmtypes"
	"github.com/alarmweave/alarmweave/pkg/transport"
)

// Delegate is implemented by the embedding application.
type Delegate interface {
	// OnAlarmClientStateChange is called for any state transition the
	// engine elects to surface.
	OnAlarmClientStateChange(s *Session)

	// OnNewRemoteAlarmDropped is called when admission control denies an
	// incoming remote alarm.
	OnNewRemoteAlarmDropped(a alarmtypes.Alarm)

	// CompareSeverity provides the total order over alarms that severity
	// eviction relies on. A negative result means a is less severe than
	// b, zero means equal, positive means a is more severe.
	CompareSeverity(a, b alarmtypes.Alarm) int

	// OnHushRequest is called when a hush request is received on behalf
	// of this session's current alarm. The application must reply via
	// the hush package's response codec over ex.
	OnHushRequest(ex transport.Exchange, proximityCode uint32, signature [20]byte)
}
