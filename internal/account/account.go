// Package account models the caller identity handed to the booking core.
// Patients and doctors are structurally similar but carry different
// capabilities, so they are distinct variants of a sealed interface
// rather than a shared shape with a role string.
package account

import "github.com/google/uuid"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Account is the authenticated caller of a booking operation. The only
// implementations are Patient and Doctor.
type Account interface {
	ID() uuid.UUID
	Role() Role

	sealed()
}

type Patient struct {
	AccountID uuid.UUID
}

func (p Patient) ID() uuid.UUID { return p.AccountID }
func (p Patient) Role() Role    { return RolePatient }
func (p Patient) sealed()       {}

type Doctor struct {
	AccountID uuid.UUID
}

func (d Doctor) ID() uuid.UUID { return d.AccountID }
func (d Doctor) Role() Role    { return RoleDoctor }
func (d Doctor) sealed()       {}

// FromRole builds the variant for a parsed role string. Unknown roles
// return false.
func FromRole(role string, id uuid.UUID) (Account, bool) {
	switch Role(role) {
	case RolePatient:
		return Patient{AccountID: id}, true
	case RoleDoctor:
		return Doctor{AccountID: id}, true
	default:
		return nil, false
	}
}
