// Package types defines the data model and collaborator contracts shared by
// the poller and its sinks.
package types

import (
	"context"
	"encoding/json"
)

// Reserved keys in the backend check response.
const (
	NewsKey   = "_news"   // top-level: news payload
	LogKey    = "_log"    // per app: log entries
	RangesKey = "_ranges" // per app: ranges artifact (ignored)
)

// TrackedEntity is one app known to the workspace. Identity is ID.
type TrackedEntity struct {
	ID      string
	Name    string
	AuthKey string
}

// AppAuthorization is one entry of the batched check request.
type AppAuthorization struct {
	AppID   string `json:"appId"`
	AuthKey string `json:"authKey"`
}

// PollPayload is the batched check request, one entry per eligible app.
type PollPayload []AppAuthorization

// PollResponse is the raw backend response: app id -> app update, plus the
// reserved NewsKey entry.
type PollResponse map[string]json.RawMessage

// ConsumptionMap maps an object category (e.g. "table", "codeunit") to the
// consumed object ids.
type ConsumptionMap map[string][]int

// LogEventData carries the details of a getNext event.
type LogEventData struct {
	Type string `json:"type,omitempty"`
	ID   int    `json:"id,omitempty"`
}

// LogEntry is one backend event log record for an app.
type LogEntry struct {
	Timestamp int64        `json:"timestamp"` // unix millis
	EventType string       `json:"eventType"`
	User      string       `json:"user"`
	Data      LogEventData `json:"data"`
}

// Event types reported in the app log.
const (
	EventAuthorize   = "authorize"
	EventDeauthorize = "deauthorize"
	EventGetNext     = "getNext"
	EventSyncFull    = "syncFull"
	EventSyncMerge   = "syncMerge"
)

// NewsButton is an action attached to a news entry.
type NewsButton struct {
	Caption string `json:"caption"`
	Action  string `json:"action"`
	Payload string `json:"payload,omitempty"`
}

// NewsEntry is one item of the backend news feed.
type NewsEntry struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Buttons []NewsButton `json:"buttons,omitempty"`
}

// NewsUpdate is the decoded NewsKey payload.
type NewsUpdate []NewsEntry

// EntityUpdate is the per-app slice of a response after decomposition.
// The ranges artifact is dropped.
type EntityUpdate struct {
	ID          string
	Log         []LogEntry
	Consumption ConsumptionMap
}

// Enumerator lists the apps eligible for polling right now.
type Enumerator interface {
	ListEligibleEntities(ctx context.Context) ([]TrackedEntity, error)
}

// Transport performs the batched check call. A nil response with a nil
// error means "no result".
type Transport interface {
	CheckBatch(ctx context.Context, payload PollPayload) (PollResponse, error)
}

// NewsSink accepts the news slice and reports whether its state changed.
type NewsSink interface {
	UpdateNews(news NewsUpdate) bool
}

// ConsumptionSink accepts one app's consumption and reports whether it changed.
type ConsumptionSink interface {
	UpdateConsumption(appID string, consumption ConsumptionMap) bool
}

// LogSink accepts one app's log entries and reports whether anything new arrived.
type LogSink interface {
	UpdateLog(appID string, entries []LogEntry, appName string) bool
}

// Refresher is signalled when consumption state changed and the UI needs a redraw.
type Refresher interface {
	Refresh()
}

// RefreshFunc adapts a plain function to Refresher.
type RefreshFunc func()

// Refresh calls f.
func (f RefreshFunc) Refresh() { f() }
