// Where: internal/domain/envname/trigger.go
// What: Change-management trigger value types.
// Why: Give the resolver a typed input independent of any CI runner.
package envname

import (
	"fmt"
	"strings"
)

// EventKind is the kind of event that started a pipeline run.
type EventKind string

const (
	EventPush    EventKind = "push"
	EventRelease EventKind = "release"
	EventManual  EventKind = "manual"
)

// ReleaseActionReleased is the release action that promotes to production.
const ReleaseActionReleased = "released"

// Trigger describes the event that started a pipeline run.
type Trigger struct {
	Event  EventKind
	Ref    string
	Action string
}

// ParseEventKind maps a user or CI supplied event name to an EventKind.
// The GitHub Actions name "workflow_dispatch" is accepted as manual.
func ParseEventKind(value string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "push":
		return EventPush, nil
	case "release":
		return EventRelease, nil
	case "manual", "workflow_dispatch":
		return EventManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, value)
	}
}

// IsRelease reports whether the trigger is a published release.
func (t Trigger) IsRelease() bool {
	return t.Event == EventRelease && t.Action == ReleaseActionReleased
}
