// Package registry maps card UIDs to employees and employees to their
// pay parameters, from a single YAML file:
//
//	cards:
//	  "0102AABBCCDD": tanaka
//	employees:
//	  tanaka:
//	    name: 田中
//	    hourly_yen: 1500
//	    round_unit_minutes: 5
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

const defaultRoundUnitMinutes = 5

type fileEmployee struct {
	Name             string `yaml:"name"`
	HourlyYen        int    `yaml:"hourly_yen"`
	RoundUnitMinutes int    `yaml:"round_unit_minutes"`
}

type file struct {
	Cards     map[string]string       `yaml:"cards"`
	Employees map[string]fileEmployee `yaml:"employees"`
}

type Registry struct {
	cards     map[string]string
	employees map[string]types.Profile
}

// Load reads the registry file.  A missing file is not an error; it
// yields an empty registry, so the reader can run before anyone has
// been enrolled.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}

	r := Empty()
	for uid, emp := range f.Cards {
		if uid != "" && emp != "" {
			r.cards[uid] = emp
		}
	}
	for emp, e := range f.Employees {
		unit := e.RoundUnitMinutes
		if unit == 0 {
			unit = defaultRoundUnitMinutes
		}
		r.employees[emp] = types.Profile{
			DisplayName:      e.Name,
			HourlyYen:        e.HourlyYen,
			RoundUnitMinutes: unit,
		}
	}
	return r, nil
}

func Empty() *Registry {
	return &Registry{
		cards:     make(map[string]string),
		employees: make(map[string]types.Profile),
	}
}

// ResolveCard returns the employee bound to a card UID, or "unknown".
func (r *Registry) ResolveCard(uid string) string {
	if emp, ok := r.cards[uid]; ok {
		return emp
	}
	return types.UnknownEmployee
}

// Lookup returns the employee's profile.  Unknown employees get
// defaults: empty name, zero rate, 5-minute rounding unit.
func (r *Registry) Lookup(employeeID string) types.Profile {
	if p, ok := r.employees[employeeID]; ok {
		return p
	}
	return types.Profile{RoundUnitMinutes: defaultRoundUnitMinutes}
}
