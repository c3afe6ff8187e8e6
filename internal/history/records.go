package history

import "time"

// BatchRecord is one archived batch run
type BatchRecord struct {
	ID           string       `json:"id"            gorm:"primaryKey"`
	Mode         string       `json:"mode"          gorm:"not null"`
	Quality      string       `json:"quality"       gorm:"not null"`
	Status       string       `json:"status"        gorm:"not null;index"`
	Total        int          `json:"total"         gorm:"not null;default:0"`
	Succeeded    int          `json:"succeeded"     gorm:"not null;default:0"`
	Failed       int          `json:"failed"        gorm:"not null;default:0"`
	Cancelled    int          `json:"cancelled"     gorm:"not null;default:0"`
	Rejected     int          `json:"rejected"      gorm:"not null;default:0"`
	AuthFailures int          `json:"auth_failures" gorm:"not null;default:0"`
	Tasks        []TaskRecord `json:"tasks"         gorm:"foreignKey:BatchID"`
	CreatedAt    time.Time    `json:"created_at"    gorm:"index"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// TaskRecord is the final state of one task in an archived batch
type TaskRecord struct {
	ID           string    `json:"id"            gorm:"primaryKey"`
	BatchID      string    `json:"batch_id"      gorm:"not null;index;constraint:OnDelete:CASCADE;"`
	LineNo       int       `json:"line_no"       gorm:"not null"`
	SourceLine   string    `json:"source_line"   gorm:"not null"`
	ResourceKind string    `json:"resource_kind"`
	ResourceID   string    `json:"resource_id"`
	CustomName   string    `json:"custom_name"`
	Title        string    `json:"title"`
	Status       string    `json:"status"        gorm:"not null"`
	Attempts     int       `json:"attempts"      gorm:"not null;default:0"`
	OutputPath   string    `json:"output_path"`
	LastError    string    `json:"last_error"`
	NeedsLogin   bool      `json:"needs_login"   gorm:"not null;default:false"`
	FinishedAt   time.Time `json:"finished_at"`
}
