package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const separatorWidth = 59

// RunHeader holds the metadata printed above a command's output
type RunHeader struct {
	Title      string
	RunID      string
	Mode       string // Optional
	PolicyHash string // Optional
	AsOf       time.Time
}

// PrintRunHeader prints a formatted run header
func PrintRunHeader(h RunHeader) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", h.Title)
	PrintSeparator()
	if h.RunID != "" {
		fmt.Printf("  Run ID    : %s\n", h.RunID)
	}
	if h.Mode != "" {
		fmt.Printf("  Mode      : %s\n", h.Mode)
	}
	if h.PolicyHash != "" {
		fmt.Printf("  Policy    : %s\n", shortHash(h.PolicyHash))
	}
	fmt.Printf("  As of     : %s\n", h.AsOf.Format("2006-01-02 15:04:05"))
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println(strings.Repeat("─", separatorWidth))
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println(strings.Repeat("═", separatorWidth))
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	fmt.Println(formatRow(values, widths))
}

func formatRow(values []string, widths []int) string {
	var b strings.Builder
	for i, val := range values {
		fmt.Fprintf(&b, "%-*s", widths[i], val)
		if i < len(values)-1 {
			b.WriteString("  ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintRegime prints a regime state block
func PrintRegime(state contracts.RegimeState) {
	PrintKeyValue("Regime", string(state.Label), 12)
	PrintKeyValue("Return", fmt.Sprintf("%+.2f%%", state.TrailingReturn*100), 12)
	PrintKeyValue("Bars", fmt.Sprintf("%d", state.Bars), 12)
	if state.Insufficient {
		PrintKeyValue("Note", "index data insufficient, SIDEWAYS default", 12)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
