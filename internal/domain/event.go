package domain

// BroadcastEvent is the ephemeral message fanned out to live stream
// subscribers. It exists only between publish and delivery; clients that
// were not subscribed at publish time never see it.
type BroadcastEvent struct {
	Recipient string `json:"recipient"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}
