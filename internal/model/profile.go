package model

import "strings"

// Roles a profile can carry. RoleAdmin unlocks the admin pages.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Profile is the per-user record filled in on the complete-profile page.
// ID is the user's account ID.
type Profile struct {
	ID           string `json:"id"            db:"id"`
	FullName     string `json:"full_name"     db:"full_name"`
	AcademicYear string `json:"academic_year" db:"academic_year"`
	Branch       string `json:"branch"        db:"branch"`
	Role         string `json:"role"          db:"role"`
}

// IsComplete reports whether the three mandatory fields are filled in.
// A nil profile is never complete. Whitespace-only values count as empty.
func (p *Profile) IsComplete() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.FullName) != "" &&
		strings.TrimSpace(p.AcademicYear) != "" &&
		strings.TrimSpace(p.Branch) != ""
}
