package entity

import (
	"time"

	"github.com/google/uuid"
)

type Trial struct {
	Id               uuid.UUID `gorm:"type:uuid;primaryKey"`
	NctId            string    `gorm:"column:nct_id;index"`
	Title            string
	Organization     string `gorm:"index"`
	UserEmail        string `gorm:"index"`
	StartDate        *time.Time
	CompletionDate   *time.Time
	DueDate          *time.Time
	ComplianceStatus string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}
