package mention

import "time"

// WorkUnit is one discovered mention. Values are immutable once created.
type WorkUnit struct {
	ID           string
	Origin       string
	Author       string
	Text         string
	DiscoveredAt time.Time
}
