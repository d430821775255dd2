package models

import "time"

// SubscriptionStats is reported once per subscription invocation.
type SubscriptionStats struct {
	Duration    time.Duration     `json:"duration"`
	Destination string            `json:"destination"`
	Action      string            `json:"action"`
	Subscribe   any               `json:"subscribe"`
	Input       SubscriptionInput `json:"input"`
	Output      []Result          `json:"output"`
}

type SubscriptionInput struct {
	Data     []Event        `json:"data"`
	Mapping  map[string]any `json:"mapping,omitempty"`
	Settings Settings       `json:"settings"`
}

// Features toggles optional behaviour per destination instance.
type Features map[string]bool

func (f Features) Enabled(name string) bool {
	return f != nil && f[name]
}

type DynamicFieldChoice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type DynamicFieldResponse struct {
	Choices  []DynamicFieldChoice `json:"choices"`
	NextPage string               `json:"nextPage,omitempty"`
	Error    *ResultError         `json:"error,omitempty"`
}

type AudienceResult struct {
	ExternalID string `json:"externalId"`
}
