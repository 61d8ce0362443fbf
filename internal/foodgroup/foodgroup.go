// internal/foodgroup/foodgroup.go

// Package foodgroup is the read-only nutrition table the scale looks food
// groups up in. A default table is compiled in; deployments can swap it for
// a YAML file with the same shape.
package foodgroup

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"meal-scale/internal/models"
)

//go:embed groups.yaml
var defaultTable []byte

var ErrUnknownGroup = errors.New("unknown food group")

type file struct {
	Groups []models.FoodGroup `yaml:"groups"`
}

// Table maps food-group ids to their nutrient densities.
type Table struct {
	groups map[int]models.FoodGroup
}

// Default returns the compiled-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("foodgroup: embedded table: %v", err))
	}
	return t
}

// Load reads a table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read food group table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return New(f.Groups)
}

// New builds a table, rejecting duplicate ids and negative densities.
func New(groups []models.FoodGroup) (*Table, error) {
	t := &Table{groups: make(map[int]models.FoodGroup, len(groups))}
	for _, g := range groups {
		if _, dup := t.groups[g.ID]; dup {
			return nil, fmt.Errorf("duplicate food group id %d", g.ID)
		}
		if g.CarbPerG < 0 || g.LipidPerG < 0 || g.ProteinPerG < 0 || g.KcalPerG < 0 {
			return nil, fmt.Errorf("food group %d: negative density", g.ID)
		}
		t.groups[g.ID] = g
	}
	return t, nil
}

// Lookup returns the group for id. On a miss it still returns a FoodGroup
// carrying the id with zero densities, so callers can record the weight.
func (t *Table) Lookup(id int) (models.FoodGroup, error) {
	if t != nil {
		if g, ok := t.groups[id]; ok {
			return g, nil
		}
	}
	return models.FoodGroup{ID: id}, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.groups)
}

// IDs returns the known ids in ascending order.
func (t *Table) IDs() []int {
	if t == nil {
		return nil
	}
	ids := make([]int, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
