package usecase

import (
	"fmt"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

// SpecialistPool is an immutable role -> specialist table.
type SpecialistPool struct {
	byRole map[domain.Role]ports.Specialist
}

func NewSpecialistPool(specialists ...ports.Specialist) (*SpecialistPool, error) {
	byRole := make(map[domain.Role]ports.Specialist, len(specialists))
	for _, s := range specialists {
		if s == nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "new specialist pool", fmt.Errorf("nil specialist"))
		}
		role := s.Role()
		if _, err := domain.ParseRole(string(role)); err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "new specialist pool", err)
		}
		if _, dup := byRole[role]; dup {
			return nil, domain.WrapError(domain.ErrConfiguration, "new specialist pool", fmt.Errorf("role %s registered twice", role))
		}
		byRole[role] = s
	}
	return &SpecialistPool{byRole: byRole}, nil
}

func (p *SpecialistPool) Lookup(role domain.Role) (ports.Specialist, error) {
	s, ok := p.byRole[role]
	if !ok {
		return nil, domain.WrapError(domain.ErrConfiguration, "lookup specialist", fmt.Errorf("no specialist registered for role %s", role))
	}
	return s, nil
}

// Roles returns the registered roles in canonical order.
func (p *SpecialistPool) Roles() []domain.Role {
	out := make([]domain.Role, 0, len(p.byRole))
	for role := range p.byRole {
		out = append(out, role)
	}
	domain.SortRoles(out)
	return out
}
