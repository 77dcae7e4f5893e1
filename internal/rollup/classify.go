package rollup

import "searchrollup/internal/schema"

// FollowOnSearchAddonID is the addon whose version is surfaced as the
// addon_version dimension in the rollup.
const FollowOnSearchAddonID = "followonsearch@mozilla.com"

// Classify derives Type and AddonVersion for every event, in place, and
// returns the same slice. It is a pure per-row transformation with no
// failure mode: type derivation is total and addon lookup is null-safe.
func Classify(events []Event) []Event {
	for i := range events {
		classifyEvent(&events[i])
	}
	return events
}

func classifyEvent(e *Event) {
	e.Type = ClassifySource(e.Source)
	e.AddonVersion = SearchAddonVersion(e.ActiveAddons)
}

// SearchAddonVersion scans active_addons in order for the follow-on search
// addon and returns its version, or nil when the list is empty or has no
// match.
func SearchAddonVersion(addons []schema.Addon) *string {
	for i := range addons {
		if addons[i].ID == FollowOnSearchAddonID {
			v := addons[i].Version
			return &v
		}
	}
	return nil
}
