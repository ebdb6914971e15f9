package enums

// OutboxEventType names the side-effect intents emitted with mutations.
type OutboxEventType string

const (
	OutboxEventSubscriptionPaused             OutboxEventType = "subscription.paused"
	OutboxEventSubscriptionResumed            OutboxEventType = "subscription.resumed"
	OutboxEventSubscriptionCancelled          OutboxEventType = "subscription.cancelled"
	OutboxEventSubscriptionExpired            OutboxEventType = "subscription.expired"
	OutboxEventSubscriptionPreferencesUpdated OutboxEventType = "subscription.preferences_updated"
	OutboxEventSubscriptionAddressChanged     OutboxEventType = "subscription.address_changed"
	OutboxEventSubscriptionFrequencyChanged   OutboxEventType = "subscription.frequency_changed"
	OutboxEventOrderGenerated                 OutboxEventType = "order.generated"
)

// OutboxAggregateType names the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	OutboxAggregateSubscription OutboxAggregateType = "subscription"
	OutboxAggregateOrder        OutboxAggregateType = "order"
)

// IsValid reports whether the event type is known.
func (t OutboxEventType) IsValid() bool {
	switch t {
	case OutboxEventSubscriptionPaused,
		OutboxEventSubscriptionResumed,
		OutboxEventSubscriptionCancelled,
		OutboxEventSubscriptionExpired,
		OutboxEventSubscriptionPreferencesUpdated,
		OutboxEventSubscriptionAddressChanged,
		OutboxEventSubscriptionFrequencyChanged,
		OutboxEventOrderGenerated:
		return true
	}
	return false
}

// IsValid reports whether the aggregate type is known.
func (t OutboxAggregateType) IsValid() bool {
	return t == OutboxAggregateSubscription || t == OutboxAggregateOrder
}
