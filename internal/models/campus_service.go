package models

// CampusService is a bookable campus facility (registrar desk, clinic,
// counselling office and so on).
type CampusService struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Location    string `db:"location" json:"location"`
	Active      bool   `db:"active" json:"active"`
}
