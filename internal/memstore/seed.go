package memstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

// Seed is the reference data a memory-backed process starts with.
type Seed struct {
	Members []orders.Member            `json:"members"`
	Buyers  []orders.Buyer             `json:"buyers"`
	Items   []orders.Item              `json:"items"`
	Stocks  map[string]int64           `json:"stocks"`
	Costs   map[string]decimal.Decimal `json:"costs"`
}

func (s *Store) Load(seed Seed) error {
	for _, m := range seed.Members {
		s.AddMember(m)
	}
	for _, b := range seed.Buyers {
		if _, err := s.AddBuyer(b); err != nil {
			return fmt.Errorf("seed buyer %s: %w", b.BuyerCd, err)
		}
	}
	for _, it := range seed.Items {
		if _, err := s.AddItem(it); err != nil {
			return fmt.Errorf("seed item %s: %w", it.ItemCd, err)
		}
	}
	for cd, qty := range seed.Stocks {
		s.SetBaseline(cd, qty)
	}
	for cd, cost := range seed.Costs {
		s.SetUnitCost(cd, cost)
	}
	return nil
}

func ReadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// LoadFile seeds s from a JSON file; an empty path is a no-op.
func (s *Store) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	seed, err := ReadSeed(f)
	if err != nil {
		return err
	}
	return s.Load(seed)
}
