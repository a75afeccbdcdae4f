package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML seed format for the in-memory store. Base locations are
// GeoJSON Point geometries.
type Fixtures struct {
	Users []struct {
		ID    string  `yaml:"id"`
		Name  string  `yaml:"name"`
		Money float64 `yaml:"money"`
	} `yaml:"users"`
	Bases []struct {
		ID       string         `yaml:"id"`
		Name     string         `yaml:"name"`
		OwnerID  string         `yaml:"ownerId"`
		Location map[string]any `yaml:"location"`
	} `yaml:"bases"`
	Investments []struct {
		BaseID     string `yaml:"baseId"`
		InvestorID string `yaml:"investorId"`
	} `yaml:"investments"`
}

// LoadFixturesFile seeds m from the YAML file at path.
func (m *Memory) LoadFixturesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return m.LoadFixtures(f)
}

// LoadFixtures seeds m from YAML. Investments must reference a known base.
func (m *Memory) LoadFixtures(r io.Reader) error {
	var fixtures Fixtures
	if err := yaml.NewDecoder(r).Decode(&fixtures); err != nil && err != io.EOF {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, u := range fixtures.Users {
		if u.ID == "" {
			return fmt.Errorf("fixture user without id")
		}
		m.PutUser(User{ID: u.ID, Name: u.Name, Money: u.Money})
	}

	known := make(map[string]bool, len(fixtures.Bases))
	for _, b := range fixtures.Bases {
		raw, err := json.Marshal(b.Location)
		if err != nil {
			return fmt.Errorf("base %s: %w", b.ID, err)
		}
		point, err := DecodePoint(raw)
		if err != nil {
			return fmt.Errorf("base %s: %w", b.ID, err)
		}
		m.PutBase(Base{ID: b.ID, Name: b.Name, OwnerID: b.OwnerID, Location: point})
		known[b.ID] = true
	}

	for _, inv := range fixtures.Investments {
		if !known[inv.BaseID] {
			return fmt.Errorf("investment by %s references unknown base %q", inv.InvestorID, inv.BaseID)
		}
		m.AddInvestment(inv.BaseID)
	}
	return nil
}
