package checklist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/colonyops/forager/pkg/fsx"
	"github.com/colonyops/forager/pkg/lockmgr"
	"github.com/rs/zerolog"
)

const (
	tableHeaderRow    = "| ID | Target | Priority | Risk | Status |"
	tableDelimiterRow = "|----|--------|----------|------|--------|"
)

// Store owns all reads and writes of one checklist file. Mutations are
// serialized through the injected lock manager and written atomically so
// concurrent workers never corrupt each other's rows.
type Store struct {
	path  string
	locks *lockmgr.Manager
	log   zerolog.Logger
}

// NewStore creates a Store for the checklist at path.
func NewStore(path string, locks *lockmgr.Manager, log zerolog.Logger) *Store {
	return &Store{
		path:  path,
		locks: locks,
		log:   log,
	}
}

// Path returns the checklist file path.
func (s *Store) Path() string { return s.path }

// Read returns the raw checklist text for embedding into prompts.
func (s *Store) Read() (string, error) {
	return fsx.ReadString(s.path)
}

// Parse reads the checklist and returns all items in document order.
// A missing file is an error; callers treat it as a configuration fault.
func (s *Store) Parse() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	return parseDocument(string(data)), nil
}

// UpdateStatus rewrites only the status cell of the row whose first cell
// equals id, leaving every other byte of the document untouched.
func (s *Store) UpdateStatus(id, marker string) error {
	return s.locks.WithLock(s.path, func() error {
		content, err := fsx.ReadString(s.path)
		if err != nil {
			return err
		}

		lines := strings.Split(content, "\n")
		found := false
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "|") {
				continue
			}

			parts := strings.Split(line, "|")
			// A five-column row splits into seven parts: a leading and
			// trailing empty segment around the five cells.
			if len(parts) < 7 {
				continue
			}
			if strings.TrimSpace(parts[1]) != id {
				continue
			}

			parts[5] = " " + marker + " "
			lines[i] = strings.Join(parts, "|")
			found = true
			break
		}

		if !found {
			return fmt.Errorf("item %q not found in %s", id, s.path)
		}

		return fsx.WriteAtomic(s.path, []byte(strings.Join(lines, "\n")), 0o644)
	})
}

// AppendRows inserts new items into their tier tables, creating tier
// sections that do not yet exist. Items whose tier cannot be resolved are
// counted in skipped rather than silently dropped.
func (s *Store) AppendRows(items []Item, prefixTiers map[string]string) (appended, skipped int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	err = s.locks.WithLock(s.path, func() error {
		content, rerr := fsx.ReadString(s.path)
		if rerr != nil {
			return rerr
		}

		groups := make(map[string][]Item)
		for _, it := range items {
			heading := ResolveTierHeading(it, prefixTiers)
			if heading == "" {
				skipped++
				s.log.Warn().Str("id", it.ID).Msg("cannot resolve tier for item, skipping")
				continue
			}
			groups[heading] = append(groups[heading], it)
		}

		headings := make([]string, 0, len(groups))
		for h := range groups {
			headings = append(headings, h)
		}
		sort.Strings(headings)

		for _, h := range headings {
			if !hasHeading(content, h) {
				content = appendTierSection(content, h)
			}
		}

		lines := strings.Split(content, "\n")
		inserts := tierInsertPoints(lines)

		// A heading can exist with no table under it yet; give it one so
		// the rows stay attached to their tier.
		for _, h := range headings {
			if _, ok := inserts[h]; !ok {
				lines = insertTableScaffold(lines, h)
				inserts = tierInsertPoints(lines)
			}
		}

		type insertion struct {
			line int
			rows []string
		}
		var planned []insertion
		for _, h := range headings {
			at, ok := inserts[h]
			if !ok {
				at = len(lines)
			}
			rows := make([]string, 0, len(groups[h]))
			for _, it := range groups[h] {
				rows = append(rows, FormatRow(it))
			}
			planned = append(planned, insertion{line: at, rows: rows})
			appended += len(rows)
		}

		// Insert bottom-up so earlier offsets stay valid.
		sort.Slice(planned, func(i, j int) bool { return planned[i].line > planned[j].line })
		for _, ins := range planned {
			lines = append(lines[:ins.line], append(append([]string{}, ins.rows...), lines[ins.line:]...)...)
		}

		return fsx.WriteAtomic(s.path, []byte(strings.Join(lines, "\n")), 0o644)
	})
	if err != nil {
		return 0, 0, err
	}

	return appended, skipped, nil
}

// hasHeading reports whether the document already contains the tier
// heading as a full line.
func hasHeading(content, heading string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == heading {
			return true
		}
	}
	return false
}

// appendTierSection adds a new tier section (heading, column header,
// delimiter) at the end of the document.
func appendTierSection(content, heading string) string {
	trimmed := strings.TrimRight(content, "\n")
	sep := ""
	if trimmed != "" {
		sep = "\n\n"
	}
	return trimmed + sep + heading + "\n" + tableHeaderRow + "\n" + tableDelimiterRow + "\n"
}

// insertTableScaffold places the column header and delimiter directly
// below an existing heading line that has no table.
func insertTableScaffold(lines []string, heading string) []string {
	for i, line := range lines {
		if strings.TrimSpace(line) != heading {
			continue
		}
		rest := append([]string{tableHeaderRow, tableDelimiterRow}, lines[i+1:]...)
		return append(lines[:i+1], rest...)
	}
	return lines
}

// tierInsertPoints maps each tier heading to the line offset immediately
// after the last row of its table, preserving table contiguity for
// appended rows.
func tierInsertPoints(lines []string) map[string]int {
	points := make(map[string]int)

	var current string
	inTable := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			current = trimmed
			inTable = false
			continue
		}
		if current == "" {
			continue
		}

		if isTableHeader(line) {
			inTable = true
			points[current] = i + 1
			continue
		}

		if inTable {
			if strings.HasPrefix(trimmed, "|") {
				points[current] = i + 1
			} else {
				inTable = false
			}
		}
	}

	return points
}
