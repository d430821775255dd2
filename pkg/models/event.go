// Package models defines the data shared by the dispatch engine, its actions and its callers.
package models

// Event is a raw analytics event as received from a source.
type Event map[string]any

// Settings is the raw settings blob of a destination instance. Besides the
// destination-specific keys it may carry transport metadata under the
// "subscription", "subscriptions" and "oauth" keys.
type Settings map[string]any

// Transport-only settings keys.
const (
	SubscriptionKey        = "subscription"
	SubscriptionsKey       = "subscriptions"
	OAuthKey               = "oauth"
	DynamicAuthSettingsKey = "dynamicAuthSettings"
)

// UserID returns the event userId, if any.
func (e Event) UserID() string {
	v, _ := e["userId"].(string)

	return v
}

// AnonymousID returns the event anonymousId, if any.
func (e Event) AnonymousID() string {
	v, _ := e["anonymousId"].(string)

	return v
}

// AudienceSettings returns context.personas.audience_settings when present.
func (e Event) AudienceSettings() map[string]any {
	ctx, ok := e["context"].(map[string]any)
	if !ok {
		return nil
	}

	personas, ok := ctx["personas"].(map[string]any)
	if !ok {
		return nil
	}

	settings, _ := personas["audience_settings"].(map[string]any)

	return settings
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}

	return Event(DeepCopyMap(e))
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}

	return Settings(DeepCopyMap(s))
}

// DeepCopyMap copies nested maps and slices so the result shares no mutable
// state with the input.
func DeepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopy(v)
	}

	return out
}

func deepCopy(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return DeepCopyMap(value)
	case Event:
		return Event(DeepCopyMap(value))
	case Settings:
		return Settings(DeepCopyMap(value))
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = deepCopy(item)
		}

		return out
	case []map[string]any:
		out := make([]map[string]any, len(value))
		for i, item := range value {
			out[i] = DeepCopyMap(item)
		}

		return out
	default:
		return value
	}
}
