package model

import (
	"fmt"
	"strings"
)

// PayerKind identifies which persona a payer or verifying actor is
type PayerKind string

const (
	PayerKindStudent PayerKind = "student"
	PayerKindTeacher PayerKind = "teacher"
	PayerKindAdmin   PayerKind = "admin"
)

// PayerIdentity is resolved once at the authentication boundary and passed
// into the billing core as a plain value.
type PayerIdentity struct {
	Kind PayerKind `json:"kind"`
	ID   uint      `json:"id"`
}

func StudentPayer(id uint) PayerIdentity { return PayerIdentity{Kind: PayerKindStudent, ID: id} }
func TeacherPayer(id uint) PayerIdentity { return PayerIdentity{Kind: PayerKindTeacher, ID: id} }
func AdminPayer(id uint) PayerIdentity   { return PayerIdentity{Kind: PayerKindAdmin, ID: id} }

// ParsePayerKind maps a role claim to a PayerKind
func ParsePayerKind(role string) (PayerKind, bool) {
	switch PayerKind(strings.ToLower(strings.TrimSpace(role))) {
	case PayerKindStudent:
		return PayerKindStudent, true
	case PayerKindTeacher:
		return PayerKindTeacher, true
	case PayerKindAdmin:
		return PayerKindAdmin, true
	}
	return "", false
}

// IsZero reports whether the identity was never resolved
func (p PayerIdentity) IsZero() bool {
	return p.Kind == "" || p.ID == 0
}

func (p PayerIdentity) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}
