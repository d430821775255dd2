package models

// Subscription pairs a filter expression with a target action and a field
// mapping. Subscribe is kept raw because configurations in the wild carry
// non-string values there, which must be rejected per event rather than at
// decode time.
type Subscription struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	PartnerAction string         `json:"partnerAction" validate:"required"`
	Subscribe     any            `json:"subscribe"`
	Mapping       map[string]any `json:"mapping,omitempty"`
	ActionID      string         `json:"actionId,omitempty"`
	ConfigID      string         `json:"configId,omitempty"`
	ProjectID     string         `json:"projectId,omitempty"`
}

// SubscriptionMetadata identifies where a subscription comes from.
type SubscriptionMetadata struct {
	ActionConfigID      string `json:"actionConfigId,omitempty"`
	DestinationConfigID string `json:"destinationConfigId,omitempty"`
	ActionID            string `json:"actionId,omitempty"`
	SourceID            string `json:"sourceId,omitempty"`
}

func (s Subscription) Metadata() SubscriptionMetadata {
	return SubscriptionMetadata{
		ActionConfigID:      s.ID,
		DestinationConfigID: s.ConfigID,
		ActionID:            s.ActionID,
		SourceID:            s.ProjectID,
	}
}

// Filter returns the subscribe expression when it is a string.
func (s Subscription) Filter() (string, bool) {
	expr, ok := s.Subscribe.(string)

	return expr, ok
}
