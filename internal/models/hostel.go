package models

import "time"

// Hostel represents a hostel building.
type Hostel struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Warden    string    `db:"warden" json:"warden"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Room represents a hostel room.
type Room struct {
	ID       string `db:"id" json:"id"`
	HostelID string `db:"hostel_id" json:"hostel_id"`
	Number   string `db:"number" json:"number"`
	Capacity int    `db:"capacity" json:"capacity"`
	Occupied int    `db:"occupied" json:"occupied"`
}
