// Package wallets loads, validates and resolves wallet address inputs.
package wallets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsAddress reports whether value is a hex Ethereum address.
func IsAddress(value string) bool {
	return addressPattern.MatchString(value)
}

// Normalize trims and lower-cases an address or ENS name.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Load collects wallet inputs from an optional file and an optional
// comma-separated list, deduplicated and sorted. Files ending in .csv are
// read as CSV with the address in the first column, anything else is read
// line by line. Entries are not validated here, Resolve does that.
func Load(path, list string) ([]string, error) {
	seen := make(map[string]struct{})

	for _, part := range strings.Split(list, ",") {
		if w := Normalize(part); w != "" {
			seen[w] = struct{}{}
		}
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open wallets file: %w", err)
		}
		defer f.Close()

		if strings.EqualFold(filepath.Ext(path), ".csv") {
			if err := loadCSV(f, seen); err != nil {
				return nil, fmt.Errorf("read wallets csv %s: %w", path, err)
			}
		} else {
			if err := loadLines(f, seen); err != nil {
				return nil, fmt.Errorf("read wallets file %s: %w", path, err)
			}
		}
	}

	wallets := make([]string, 0, len(seen))
	for w := range seen {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets, nil
}

func loadCSV(r io.Reader, seen map[string]struct{}) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}
		if w := Normalize(row[0]); w != "" {
			seen[w] = struct{}{}
		}
	}
}

func loadLines(r io.Reader, seen map[string]struct{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if w := Normalize(line); w != "" {
			seen[w] = struct{}{}
		}
	}
	return nil
}

// Resolver resolves ENS names to addresses; satisfied by ethereum clients.
type Resolver interface {
	ResolveENS(ctx context.Context, name string) (string, error)
}

// Resolve turns mixed wallet inputs into validated lowercase addresses.
// ENS names (*.eth) are resolved through the resolver. Unresolvable names
// and invalid entries are skipped with a warning, they never fail the run.
func Resolve(ctx context.Context, resolver Resolver, inputs []string, logger *log.Logger) []string {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		switch {
		case strings.HasSuffix(input, ".eth"):
			if resolver == nil {
				logger.Printf("skipping ENS %s: no resolver configured", input)
				continue
			}
			address, err := resolver.ResolveENS(ctx, input)
			if err != nil || address == "" {
				logger.Printf("skipping unresolved ENS %s", input)
				continue
			}
			resolved = append(resolved, Normalize(address))
		case IsAddress(input):
			resolved = append(resolved, input)
		default:
			logger.Printf("skipping invalid wallet %s", input)
		}
	}
	return resolved
}
