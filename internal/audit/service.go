package audit

import (
	"encoding/json"
	"fmt"

	"cuadre-backend/internal/models"

	"gorm.io/gorm"
)

type LogOptions struct {
	CourierID   *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores an audit row through db. Pass the transaction of the change being
// audited so both commit or roll back together.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb needs the literal "null", not an empty string
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		CourierID:   opts.CourierID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: clip(opts.Description, 255),
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit log could not be saved: %w", err)
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
