package team

import "time"

// Team is one club or national side.
type Team struct {
	ID       int64
	Name     string
	Code     string
	Country  string
	Founded  *int
	National bool
	Logo     string
	// VenueID is nullable: the provider reports venue id 0 for teams
	// without a registered ground.
	VenueID   *int64
	UpdatedAt time.Time
}

// Venue is a ground, upserted opportunistically from team and fixture
// payloads without dedicated upstream calls.
type Venue struct {
	ID        int64
	Name      string
	Address   string
	City      string
	Country   string
	Capacity  *int
	Surface   string
	Image     string
	UpdatedAt time.Time
}
