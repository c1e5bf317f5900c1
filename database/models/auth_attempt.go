package models

// AuthAttempt is one authentication attempt against an external threat feed.
// Rows are append-only; every rate and block decision is computed live over
// this table.
type AuthAttempt struct {
	ID       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Source   string `json:"source" gorm:"type:varchar(50);index;not null"`
	Success  bool   `json:"success" gorm:"default:false"`
	ClientIP string `json:"client_ip" gorm:"type:varchar(50)"`
	Details  string `json:"details,omitempty" gorm:"type:text"`

	CreatedAt LocalTime `json:"created_at" gorm:"index"`
}
