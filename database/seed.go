package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	slog.Info("starting database seeding")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedPrograms(); err != nil {
		return fmt.Errorf("failed to seed programs: %w", err)
	}

	if err := s.SeedAgreements(); err != nil {
		return fmt.Errorf("failed to seed agreements: %w", err)
	}

	if err := s.SeedStudents(); err != nil {
		return fmt.Errorf("failed to seed students: %w", err)
	}

	if err := s.SeedEnrollments(); err != nil {
		return fmt.Errorf("failed to seed enrollments: %w", err)
	}

	slog.Info("database seeding completed")
	return nil
}

// SeedPrograms creates sample programs for institution 1
func (s *Seeder) SeedPrograms() error {
	var count int64
	if err := s.db.Model(&model.Program{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		slog.Info("programs already exist, skipping")
		return nil
	}

	programs := []model.Program{
		{InstitutionID: 1, Name: "Maestria en Administracion de Empresas", Code: "MBA", Cost: decimal.NewFromInt(15000), Currency: "BOB"},
		{InstitutionID: 1, Name: "Diplomado en Educacion Superior", Code: "DES", Cost: decimal.NewFromInt(4500), Currency: "BOB"},
		{InstitutionID: 1, Name: "Especialidad en Gestion Tributaria", Code: "EGT", Cost: decimal.NewFromInt(10000), Currency: "BOB"},
	}

	if err := s.db.Create(&programs).Error; err != nil {
		return err
	}

	slog.Info("created programs", "count", len(programs))
	return nil
}

// SeedAgreements creates a general institutional agreement and one scoped to a program
func (s *Seeder) SeedAgreements() error {
	var count int64
	if err := s.db.Model(&model.Agreement{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		slog.Info("agreements already exist, skipping")
		return nil
	}

	var mba model.Program
	if err := s.db.Where("code = ?", "MBA").First(&mba).Error; err != nil {
		return fmt.Errorf("no MBA program found, seed programs first: %w", err)
	}

	agreements := []model.Agreement{
		{InstitutionID: 1, ProgramID: &mba.ID, Name: "Convenio Colegio de Economistas", Percent: decimal.NewFromInt(15), Active: true},
		{InstitutionID: 1, Name: "Convenio Docentes", Percent: decimal.NewFromInt(10), Active: false},
	}

	if err := s.db.Create(&agreements).Error; err != nil {
		return err
	}

	slog.Info("created agreements", "count", len(agreements))
	return nil
}

// SeedStudents creates sample students with the payer data the gateway needs
func (s *Seeder) SeedStudents() error {
	var count int64
	if err := s.db.Model(&model.Student{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		slog.Info("students already exist, skipping")
		return nil
	}

	students := []model.Student{
		{Code: "EST-0001", Name: "Maria Fernanda Rojas", DocumentType: 1, DocumentID: "6543210", Phone: "70012345", Email: "maria.rojas@example.edu"},
		{Code: "EST-0002", Name: "Juan Carlos Quispe", DocumentType: 1, DocumentID: "7654321", Phone: "71123456", Email: "juan.quispe@example.edu"},
	}

	if err := s.db.Create(&students).Error; err != nil {
		return err
	}

	slog.Info("created students", "count", len(students))
	return nil
}

// SeedEnrollments enrolls every seeded student in the first program
func (s *Seeder) SeedEnrollments() error {
	var count int64
	if err := s.db.Model(&model.Enrollment{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		slog.Info("enrollments already exist, skipping")
		return nil
	}

	var students []model.Student
	if err := s.db.Order("id").Find(&students).Error; err != nil {
		return err
	}
	var programs []model.Program
	if err := s.db.Order("id").Find(&programs).Error; err != nil {
		return err
	}
	if len(students) == 0 || len(programs) == 0 {
		return fmt.Errorf("no students or programs found, seed them first")
	}

	now := time.Now().UTC()
	enrollments := make([]model.Enrollment, 0, len(students))
	for i, st := range students {
		p := programs[i%len(programs)]
		enrollments = append(enrollments, model.Enrollment{
			StudentID:     st.ID,
			ProgramID:     p.ID,
			InstitutionID: p.InstitutionID,
			EnrolledAt:    now,
		})
	}

	if err := s.db.Create(&enrollments).Error; err != nil {
		return err
	}

	slog.Info("created enrollments", "count", len(enrollments))
	return nil
}

// RunSeeds runs all seeders against db
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
