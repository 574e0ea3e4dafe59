package checklist

import (
	"fmt"
	"strings"
)

// isTableHeader reports whether a line is the canonical column header row.
// Both the ID and Target labels must be present so arbitrary tables in the
// document do not open row parsing.
func isTableHeader(line string) bool {
	return strings.Contains(line, "| ID |") && strings.Contains(line, "| Target |")
}

// splitRow splits a table row on the pipe delimiter, trims each cell, and
// drops empties.
func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// isSeparatorCell matches the delimiter row under the column header.
func isSeparatorCell(cell string) bool {
	return strings.HasPrefix(cell, "-")
}

// parseDocument scans the checklist text line by line and extracts items
// with their inherited tier and section context. A document with zero
// recognized tiers is valid and yields no items.
func parseDocument(content string) []Item {
	var (
		items   []Item
		tier    string
		section string
		inTable bool
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			tier = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			section = ""
			inTable = false
			continue
		}
		if strings.HasPrefix(trimmed, "### ") {
			section = strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
			inTable = false
			continue
		}

		if isTableHeader(line) {
			inTable = true
			continue
		}

		if !inTable {
			continue
		}
		if !strings.HasPrefix(trimmed, "|") {
			inTable = false
			continue
		}

		cells := splitRow(trimmed)
		// Rows with fewer than the five canonical columns are malformed
		// and discarded rather than raising.
		if len(cells) < 5 {
			continue
		}
		if cells[0] == "ID" || isSeparatorCell(cells[0]) {
			continue
		}

		items = append(items, Item{
			ID:       cells[0],
			Target:   cells[1],
			Priority: cells[2],
			Risk:     cells[3],
			Status:   cells[4],
			Tier:     tier,
			Section:  section,
		})
	}

	return items
}

// FormatRow renders an item as a table row, the exact inverse of parsing.
// An empty status gets the not-started marker.
func FormatRow(item Item) string {
	status := item.Status
	if status == "" {
		status = StatusNotStarted
	}
	return fmt.Sprintf("| %s | %s | %s | %s | %s |", item.ID, item.Target, item.Priority, item.Risk, status)
}
