package standard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/st-keller/objid-poller/types"
)

// Notification is one announced log event.
type Notification struct {
	Timestamp time.Time `json:"timestamp"`
	AppID     string    `json:"app_id"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
}

// LogNotifier turns backend log entries into user notifications.
//
// The first update for an app only records a baseline so that opening a
// workspace does not replay the whole history. Later updates announce every
// entry newer than the baseline, except the ones made by the local user.
type LogNotifier struct {
	mu         sync.Mutex
	lastSeen   map[string]int64 // appID -> newest entry timestamp
	history    []Notification
	maxHistory int
	self       string
	notify     func(message string)
	logger     *slog.Logger
}

// LogNotifierConfig configures a LogNotifier.
type LogNotifierConfig struct {
	Self       string               // local user; their own events are not announced
	MaxHistory int                  // ring buffer size, default 100
	Notify     func(message string) // optional, called for every announcement
	Logger     *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(cfg LogNotifierConfig) *LogNotifier {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LogNotifier{
		lastSeen:   make(map[string]int64),
		history:    make([]Notification, 0, cfg.MaxHistory),
		maxHistory: cfg.MaxHistory,
		self:       cfg.Self,
		notify:     cfg.Notify,
		logger:     cfg.Logger,
	}
}

// UpdateLog processes the log entries of appID and reports whether any entry
// newer than the previously seen one arrived.
func (n *LogNotifier) UpdateLog(appID string, entries []types.LogEntry, appName string) bool {
	if len(entries) == 0 {
		return false
	}
	if appName == "" {
		appName = appID
	}

	n.mu.Lock()
	last, known := n.lastSeen[appID]

	newest := last
	var fresh []types.LogEntry
	for _, entry := range entries {
		if known && entry.Timestamp <= last {
			continue
		}
		if entry.Timestamp > newest {
			newest = entry.Timestamp
		}
		fresh = append(fresh, entry)
	}
	if len(fresh) == 0 {
		n.mu.Unlock()
		return false
	}
	n.lastSeen[appID] = newest

	if !known {
		// Baseline only.
		n.mu.Unlock()
		return true
	}

	var messages []string
	for _, entry := range fresh {
		if entry.User == "" || entry.User == n.self {
			continue
		}
		message := FormatLogEntry(entry, appName)
		if message == "" {
			continue
		}
		n.record(Notification{
			Timestamp: time.UnixMilli(entry.Timestamp).UTC(),
			AppID:     appID,
			EventType: entry.EventType,
			Message:   message,
		})
		messages = append(messages, message)
	}
	notify := n.notify
	n.mu.Unlock()

	for _, message := range messages {
		n.logger.Info(message, "app_id", appID)
		if notify != nil {
			notify(message)
		}
	}
	return true
}

// record appends to the ring buffer. Caller holds mu.
func (n *LogNotifier) record(notification Notification) {
	n.history = append(n.history, notification)
	if len(n.history) > n.maxHistory {
		n.history = n.history[len(n.history)-n.maxHistory:]
	}
}

// History returns the announced notifications, oldest first.
func (n *LogNotifier) History() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Notification, len(n.history))
	copy(out, n.history)
	return out
}

// FormatLogEntry returns the user-facing text for entry, or "" for event
// types that are not announced.
func FormatLogEntry(entry types.LogEntry, appName string) string {
	switch entry.EventType {
	case types.EventAuthorize:
		return fmt.Sprintf("%s authorized %s.", entry.User, appName)
	case types.EventDeauthorize:
		return fmt.Sprintf("%s deauthorized %s.", entry.User, appName)
	case types.EventGetNext:
		return fmt.Sprintf("%s created %s %d in %s.", entry.User, entry.Data.Type, entry.Data.ID, appName)
	case types.EventSyncFull:
		return fmt.Sprintf("%s performed full synchronization for %s.", entry.User, appName)
	case types.EventSyncMerge:
		return fmt.Sprintf("%s performed update synchronization for %s.", entry.User, appName)
	default:
		return ""
	}
}
