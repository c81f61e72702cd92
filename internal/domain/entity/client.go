package entity

import "time"

// Client representa una organización/tenant del portal. La unicidad y la
// visibilidad de los CFDIs se limita siempre al client.
type Client struct {
	ID        string
	Name      string
	RFC       string // RFC del contribuyente (México)
	Email     string
	Status    string // active, suspended
	CreatedAt time.Time
	UpdatedAt time.Time
}
