package models

import (
	"time"
)

// CampusNone is stored in place of a missing campus so the status table
// never carries SQL NULLs.
const CampusNone = "NULL"

// Lead is one unprocessed row from the live CRM table. It exists only for
// the duration of a single contact attempt and is never written back.
type Lead struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Phone     string  `gorm:"type:varchar(50);index" json:"phone"`
	FirstName string  `gorm:"type:varchar(255)" json:"first_name"`
	Program   string  `gorm:"type:varchar(255)" json:"program"`
	Owner     string  `gorm:"type:varchar(255)" json:"owner"`
	Campus    *string `gorm:"type:varchar(100);index" json:"campus"`
}

func (Lead) TableName() string {
	return "live_leads"
}

// CampusOrNone returns the campus name, or CampusNone when the CRM left it NULL.
func (l Lead) CampusOrNone() string {
	if l.Campus == nil {
		return CampusNone
	}
	return *l.Campus
}

// LeadStatus is the append-only record produced for every processed lead.
// Rows are never updated or deleted by this system.
type LeadStatus struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LeadName  string    `gorm:"type:varchar(255)" json:"lead_name"`
	Phone     string    `gorm:"type:varchar(50);index" json:"phone"`
	Program   string    `gorm:"type:varchar(255)" json:"program"`
	Owner     string    `gorm:"type:varchar(255)" json:"owner"`
	Campus    string    `gorm:"type:varchar(100);index" json:"campus"`
	Status    Outcome   `gorm:"type:varchar(20)" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LeadStatus) TableName() string {
	return "lead_status"
}
