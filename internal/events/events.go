package events

// Typed chat-platform events shared between the twitch ingest and the core.
// The ingest validates raw IRC payloads into these variants so nothing past
// the adapter boundary handles platform-specific shapes.

// Event is the closed set of chat-platform events the service reacts to.
// Implemented only by the types in this package.
type Event interface {
	event()
}

// Subscription is a first-time paid subscription.
type Subscription struct {
	Plan     string // "Prime", "1000", "2000" or "3000"
	Username string
}

// Resub is a returning subscriber's renewal announcement.
type Resub struct {
	Plan     string
	Username string
}

// SubscriptionGift is a single gifted subscription.
type SubscriptionGift struct {
	Plan      string
	Gifter    string
	Recipient string
}

// MysteryGiftBundle is a batch of gifted subscriptions announced as one
// event. The individual gifts arrive as separate SubscriptionGift events, so
// the bundle itself never extends the timer.
type MysteryGiftBundle struct {
	Plan   string
	Gifter string
	Count  int
}

// Cheer is a bit donation attached to a chat message.
type Cheer struct {
	Bits     int
	Username string
}

// ChatMessage is a plain chat line, the carrier for operator commands.
type ChatMessage struct {
	Username string
	Text     string
}

func (Subscription) event()      {}
func (Resub) event()             {}
func (SubscriptionGift) event()  {}
func (MysteryGiftBundle) event() {}
func (Cheer) event()             {}
func (ChatMessage) event()       {}
