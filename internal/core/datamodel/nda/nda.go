package nda

import "time"

// NDASignature records an applicant's e-signature. At most one signature
// exists per application; the unique index makes first-write-wins explicit.
type NDASignature struct {
	ID            int64     `gorm:"primaryKey"`
	ApplicationID int64     `gorm:"column:application_id;not null;uniqueIndex"`
	SignatureData string    `gorm:"column:signature_data;not null"`
	SignedAt      time.Time `gorm:"column:signed_at;default:now()"`
	IPAddress     string    `gorm:"column:ip_address"`
	UserAgent     string    `gorm:"column:user_agent"`
}

func (NDASignature) TableName() string {
	return "nda_signatures"
}
