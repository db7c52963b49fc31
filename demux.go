package poller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/st-keller/objid-poller/types"
)

// Changes aggregates the sink results of one response.
type Changes struct {
	// AnyChange is true if any sink changed. It drives the backoff reset.
	AnyChange bool
	// ConsumptionChange is true if any app's consumption changed. Only this
	// warrants a UI refresh.
	ConsumptionChange bool
}

// Sinks are the independent owners of the response slices.
type Sinks struct {
	News        types.NewsSink
	Consumption types.ConsumptionSink
	Log         types.LogSink
}

func (s Sinks) validate() error {
	if s.News == nil {
		return fmt.Errorf("news sink required")
	}
	if s.Consumption == nil {
		return fmt.Errorf("consumption sink required")
	}
	if s.Log == nil {
		return fmt.Errorf("log sink required")
	}
	return nil
}

// NameFunc resolves an app id to its display name.
type NameFunc func(appID string) string

// Demultiplexer routes one check response to the sinks.
type Demultiplexer struct {
	sinks Sinks
	name  NameFunc
}

// NewDemultiplexer creates a Demultiplexer. name may be nil, in which case
// app ids are used as display names.
func NewDemultiplexer(sinks Sinks, name NameFunc) (*Demultiplexer, error) {
	if err := sinks.validate(); err != nil {
		return nil, err
	}
	if name == nil {
		name = func(appID string) string { return appID }
	}
	return &Demultiplexer{sinks: sinks, name: name}, nil
}

// Split decodes resp into the news slice and one update per app, sorted by
// app id. The returned values share nothing with resp.
func (d *Demultiplexer) Split(resp types.PollResponse) (types.NewsUpdate, []types.EntityUpdate, error) {
	var news types.NewsUpdate
	if raw, ok := resp[types.NewsKey]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &news); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, types.NewsKey, err)
		}
	}

	ids := make([]string, 0, len(resp))
	for id := range resp {
		if id == types.NewsKey {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	updates := make([]types.EntityUpdate, 0, len(ids))
	for _, id := range ids {
		update, err := decodeEntity(id, resp[id])
		if err != nil {
			return nil, nil, err
		}
		updates = append(updates, update)
	}

	return news, updates, nil
}

// decodeEntity splits one app object into its log entries and consumption.
// Underscore keys other than the log are reserved and dropped.
func decodeEntity(id string, raw json.RawMessage) (types.EntityUpdate, error) {
	update := types.EntityUpdate{ID: id, Consumption: types.ConsumptionMap{}}
	if isNull(raw) {
		return update, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.EntityUpdate{}, fmt.Errorf("%w: app %s: %v", ErrMalformedResponse, id, err)
	}

	for key, value := range fields {
		switch {
		case key == types.LogKey:
			if isNull(value) {
				continue
			}
			if err := json.Unmarshal(value, &update.Log); err != nil {
				return types.EntityUpdate{}, fmt.Errorf("%w: app %s: %s: %v", ErrMalformedResponse, id, key, err)
			}
		case strings.HasPrefix(key, "_"):
			// _ranges and future reserved fields
		default:
			var consumed []int
			if !isNull(value) {
				if err := json.Unmarshal(value, &consumed); err != nil {
					return types.EntityUpdate{}, fmt.Errorf("%w: app %s: %s: %v", ErrMalformedResponse, id, key, err)
				}
			}
			update.Consumption[key] = consumed
		}
	}

	return update, nil
}

// Apply splits resp and feeds every slice to its sink. The response is
// decoded completely before any sink is called, so a malformed response
// changes nothing.
func (d *Demultiplexer) Apply(resp types.PollResponse) (Changes, error) {
	news, updates, err := d.Split(resp)
	if err != nil {
		return Changes{}, err
	}

	var changes Changes
	if d.sinks.News.UpdateNews(news) {
		changes.AnyChange = true
	}

	for _, update := range updates {
		if d.sinks.Consumption.UpdateConsumption(update.ID, update.Consumption) {
			changes.AnyChange = true
			changes.ConsumptionChange = true
		}
		// Log changes reset the backoff but never trigger a refresh.
		if d.sinks.Log.UpdateLog(update.ID, update.Log, d.name(update.ID)) {
			changes.AnyChange = true
		}
	}

	return changes, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
