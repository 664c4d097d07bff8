package models

import (
	"time"
)

// RiderStatus represents the availability of a rider
type RiderStatus string

const (
	RiderOnline  RiderStatus = "online"
	RiderOffline RiderStatus = "offline"
)

// Rider is a delivery courier. Geocoded positions live in the geospatial
// index, not here; LastSeen is refreshed by the courier worker heartbeat.
type Rider struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Phone           string      `json:"phone"`
	Status          RiderStatus `json:"status"`
	OrdersDelivered int         `json:"orders_delivered"`
	LastSeen        time.Time   `json:"last_seen"`
	CreatedAt       time.Time   `json:"created_at,omitempty"`
}

// Stage is a dispatch staging area riders report to.
type Stage struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// RiderStageMembership links a rider to a stage. A rider has at most one
// active primary membership at a time.
type RiderStageMembership struct {
	RiderID  int64     `json:"rider_id"`
	StageID  int64     `json:"stage_id"`
	Primary  bool      `json:"primary"`
	JoinedAt time.Time `json:"joined_at"`
}
