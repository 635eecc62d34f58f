package shared

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Roles
// ═══════════════════════════════════════════════════════════════════════════

// Role is the account role stored on a user record.
type Role string

const (
	RoleOrdinary  Role = "ordinary"
	RoleStaff     Role = "staff"
	RoleDeveloper Role = "developer"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOrdinary, RoleStaff, RoleDeveloper:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may read other users' data.
func (r Role) IsPrivileged() bool {
	return r == RoleStaff || r == RoleDeveloper
}

// ParseRoles parses a comma-separated role list such as "staff,developer".
func ParseRoles(value string) ([]Role, error) {
	var roles []Role
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r := Role(strings.ToLower(part))
		if !r.IsValid() {
			return nil, InvalidArgument("shared", "ParseRoles", "unknown role %q", part)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Year of study
// ═══════════════════════════════════════════════════════════════════════════

// YearOfStudy is the self-declared year of study, "I" through "V".
type YearOfStudy string

var yearOrdinals = map[YearOfStudy]int{
	"I":   1,
	"II":  2,
	"III": 3,
	"IV":  4,
	"V":   5,
}

// Ordinal returns 1..5, or 0 when the value is not a known year.
func (y YearOfStudy) Ordinal() int {
	return yearOrdinals[YearOfStudy(strings.ToUpper(strings.TrimSpace(string(y))))]
}

// IsValid checks if the year is within I..V.
func (y YearOfStudy) IsValid() bool {
	return y.Ordinal() > 0
}

// ═══════════════════════════════════════════════════════════════════════════
// Money
// ═══════════════════════════════════════════════════════════════════════════

// Money is an amount in minor currency units.
type Money int64

// String formats the amount with two decimal places.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
