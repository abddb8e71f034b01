package domain

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// TableInventory is the list of base tables present in a schema.
// Comparisons ignore order.
type TableInventory []string

func ReadInventory(r io.Reader) (TableInventory, error) {
	var inv TableInventory
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		inv = append(inv, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return inv, nil
}

func ReadInventoryFile(path string) (TableInventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()
	return ReadInventory(f)
}

// WriteFile stores one table name per line.
func (inv TableInventory) WriteFile(path string) error {
	var b strings.Builder
	for _, name := range inv {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

func (inv TableInventory) set() map[string]struct{} {
	m := make(map[string]struct{}, len(inv))
	for _, name := range inv {
		m[name] = struct{}{}
	}
	return m
}

// Diff reports the names in inv absent from actual (missing) and the names
// in actual absent from inv (unexpected). Both slices are sorted.
func (inv TableInventory) Diff(actual TableInventory) (missing, unexpected []string) {
	want, got := inv.set(), actual.set()
	for name := range want {
		if _, ok := got[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected
}

func (inv TableInventory) Equal(other TableInventory) bool {
	missing, unexpected := inv.Diff(other)
	return len(missing) == 0 && len(unexpected) == 0
}
