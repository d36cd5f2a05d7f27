package sched

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Seed is one curated source URL, optionally annotated with a vendor hint
// from the second whitespace-separated column.
type Seed struct {
	URL    string
	Vendor string
}

// LoadSeedFile parses a seed list: one URL per line, blank lines and
// lines starting with '#' ignored, optional second column naming the
// vendor.
func LoadSeedFile(path string) ([]Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sched: open seed list: %w", err)
	}
	defer f.Close()

	var seeds []Seed
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		seed := Seed{URL: fields[0]}
		if len(fields) > 1 {
			seed.Vendor = fields[1]
		}
		seeds = append(seeds, seed)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sched: read seed list: %w", err)
	}
	return seeds, nil
}

// FileSeeds adapts a path into the loader func the Scheduler wants.
func FileSeeds(path string) func() ([]Seed, error) {
	return func() ([]Seed, error) { return LoadSeedFile(path) }
}
