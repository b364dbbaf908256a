package library

import "fmt"

// LoanPolicy gathers the circulation limits that would otherwise be magic
// numbers scattered through the code: how many books each role may hold at
// once, how long a loan runs, and how extensions are bounded.
type LoanPolicy struct {
	// MaxLoans maps a role to its concurrent-loan ceiling. Roles missing
	// from the map fall back to DefaultMaxLoans.
	MaxLoans        map[Role]int
	DefaultMaxLoans int

	// LoanDays maps a role to its loan period in days, falling back to
	// DefaultLoanDays.
	LoanDays        map[Role]int
	DefaultLoanDays int

	// DefaultExtensionDays is used when an extension request does not name
	// a day count; MaxExtensionDays caps a single extension and
	// MaxExtensions caps how many times one loan may be extended.
	DefaultExtensionDays int
	MaxExtensionDays     int
	MaxExtensions        int
}

// DefaultLoanPolicy returns the standing policy of the library: five
// concurrent loans for fourteen days, except teachers who get ten loans for
// thirty days; up to five extensions of a week each.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{
		MaxLoans:        map[Role]int{RoleTeacher: 10},
		DefaultMaxLoans: 5,
		LoanDays:        map[Role]int{RoleTeacher: 30},
		DefaultLoanDays: 14,

		DefaultExtensionDays: 7,
		MaxExtensionDays:     30,
		MaxExtensions:        5,
	}
}

// MaxLoansFor returns the concurrent-loan ceiling for a role.
func (p LoanPolicy) MaxLoansFor(r Role) int {
	if n, ok := p.MaxLoans[r]; ok {
		return n
	}
	return p.DefaultMaxLoans
}

// LoanDaysFor returns the loan period in days for a role.
func (p LoanPolicy) LoanDaysFor(r Role) int {
	if n, ok := p.LoanDays[r]; ok {
		return n
	}
	return p.DefaultLoanDays
}

// Validate rejects policies that could never issue or extend a loan.
func (p LoanPolicy) Validate() error {
	if p.DefaultMaxLoans <= 0 {
		return fmt.Errorf("loan policy: default max loans must be positive, got %d", p.DefaultMaxLoans)
	}
	if p.DefaultLoanDays <= 0 {
		return fmt.Errorf("loan policy: default loan days must be positive, got %d", p.DefaultLoanDays)
	}
	if p.DefaultExtensionDays <= 0 {
		return fmt.Errorf("loan policy: default extension days must be positive, got %d", p.DefaultExtensionDays)
	}
	if p.MaxExtensionDays < p.DefaultExtensionDays {
		return fmt.Errorf("loan policy: max extension days %d below default %d", p.MaxExtensionDays, p.DefaultExtensionDays)
	}
	if p.MaxExtensions < 0 {
		return fmt.Errorf("loan policy: max extensions must not be negative, got %d", p.MaxExtensions)
	}
	for role, n := range p.MaxLoans {
		if n <= 0 {
			return fmt.Errorf("loan policy: max loans for role %q must be positive, got %d", role, n)
		}
	}
	for role, n := range p.LoanDays {
		if n <= 0 {
			return fmt.Errorf("loan policy: loan days for role %q must be positive, got %d", role, n)
		}
	}
	return nil
}
