// Package source reads temperature readings from the host.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(root *os.Root, name string) (int64, error) {
	text, err := readTrim(root, name)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}

// readIntPtr returns nil when the file is missing or unreadable. Sensors
// without a current value are still listed.
func readIntPtr(root *os.Root, name string) *int64 {
	value, err := readInt(root, name)
	if err != nil {
		return nil
	}
	return &value
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

type indexedDir struct {
	name  string
	index int
}

// listIndexed returns entries of dir named prefix<N>, sorted by N. A missing
// dir yields no entries.
func listIndexed(root *os.Root, dir, prefix string) ([]indexedDir, error) {
	entries, err := fs.ReadDir(root.FS(), dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out []indexedDir
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !allDigits(name[len(prefix):]) {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		index, err := strconv.Atoi(name[len(prefix):])
		if err != nil {
			continue
		}
		out = append(out, indexedDir{name: name, index: index})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

// splitIndexed parses names like "temp3_input" into 3 given prefix "temp"
// and suffix "_input".
func splitIndexed(name, prefix, suffix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	middle := name[len(prefix) : len(name)-len(suffix)]
	if !allDigits(middle) {
		return 0, false
	}
	index, err := strconv.Atoi(middle)
	if err != nil {
		return 0, false
	}
	return index, true
}
