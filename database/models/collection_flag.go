package models

// CollectionFlag is an append-only log of the master collection switch. The
// newest row doubles as a fallback source for the enabled flag when the config
// document on disk is unreadable, and the full table is an audit trail of
// every flip.
type CollectionFlag struct {
	ID      uint `json:"id" gorm:"primaryKey;autoIncrement"`
	Enabled bool `json:"enabled"`

	UpdatedAt LocalTime `json:"updated_at"`
}
