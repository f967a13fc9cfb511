package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Program represents an academic program offered by an institution
type Program struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InstitutionID uint            `gorm:"not null;index" json:"institution_id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Code          string          `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Cost          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"cost"`
	Currency      string          `gorm:"type:varchar(10);default:'BOB'" json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for Program
func (Program) TableName() string {
	return "programs"
}

// Student holds the payer data the QR gateway asks for
type Student struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Code         string         `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	DocumentType int            `gorm:"default:1" json:"document_type"` // 1 = national id card
	DocumentID   string         `gorm:"type:varchar(30)" json:"document_id"`
	Phone        string         `gorm:"type:varchar(30)" json:"phone"`
	Email        string         `gorm:"type:varchar(255)" json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Student
func (Student) TableName() string {
	return "students"
}

// Enrollment links a student to a program at an institution
type Enrollment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	StudentID     uint           `gorm:"not null;index" json:"student_id"`
	ProgramID     uint           `gorm:"not null;index" json:"program_id"`
	InstitutionID uint           `gorm:"not null;index" json:"institution_id"`
	EnrolledAt    time.Time      `json:"enrolled_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Program *Program `gorm:"foreignKey:ProgramID" json:"program,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}

// Agreement is an institutional arrangement (convenio) that reduces program
// cost by a percentage. ProgramID narrows it to a single program when set.
type Agreement struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InstitutionID uint            `gorm:"not null;index" json:"institution_id"`
	ProgramID     *uint           `gorm:"index" json:"program_id,omitempty"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Percent       decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percent"`
	Active        bool            `gorm:"not null" json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for Agreement
func (Agreement) TableName() string {
	return "agreements"
}

// AppliesTo reports whether the agreement covers the given enrollment
func (a *Agreement) AppliesTo(e *Enrollment) bool {
	if !a.Active || a.InstitutionID != e.InstitutionID {
		return false
	}
	return a.ProgramID == nil || *a.ProgramID == e.ProgramID
}
