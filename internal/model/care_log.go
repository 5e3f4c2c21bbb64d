package model

import "time"

// CareLog is one processed voice memo. Rows are only ever inserted.
type CareLog struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username         string    `gorm:"size:64;not null;index" json:"username"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	Transcript       string    `gorm:"type:mediumtext" json:"transcript"`
	Summary          string    `gorm:"type:mediumtext" json:"summary"`
	TxtPath          string    `gorm:"size:512" json:"txt_path"`
	PdfPath          string    `gorm:"size:512" json:"pdf_path"`
	CreatedAt        time.Time `json:"created_at"`
}

func (CareLog) TableName() string {
	return "care_logs"
}
