// Package ui provides terminal styling for ahdb CLI output.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Ayu palette, adaptive to light and dark terminals
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle     = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle     = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	KeyStyle      = lipgloss.NewStyle().Foreground(ColorMuted).Width(16)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
)

const (
	TreeChild  = "├─ "
	TreeLast   = "└─ "
	TreeIndent = "   "
)

// SeparatorLight underlines section headers.
const SeparatorLight = "──────────────────────────────────────────"

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Setup selects the color profile. Colors are off when noColor is set,
// NO_COLOR is present, or stdout is not a terminal.
func Setup(noColor bool) {
	_, envNoColor := os.LookupEnv("NO_COLOR")
	if noColor || envNoColor || !IsTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a section header with its underline.
func RenderCategory(s string) string {
	return CategoryStyle.Render(s) + "\n" + MutedStyle.Render(SeparatorLight)
}

// KV renders an aligned "key value" line.
func KV(key string, value any) string {
	return KeyStyle.Render(key) + fmt.Sprint(value)
}

// Status renders an icon-prefixed status line.
func Status(ok bool, msg string) string {
	if ok {
		return RenderPass(IconPass) + " " + msg
	}
	return RenderFail(IconFail) + " " + msg
}

// Tree renders labels as a tree. depth gives each label's nesting level,
// 0 being the root.
func Tree(labels []string, depth []int) string {
	var b strings.Builder
	for i, label := range labels {
		d := depth[i]
		if d > 0 {
			b.WriteString(strings.Repeat(TreeIndent, d-1))
			if lastAtDepth(depth, i) {
				b.WriteString(MutedStyle.Render(TreeLast))
			} else {
				b.WriteString(MutedStyle.Render(TreeChild))
			}
		}
		b.WriteString(label)
		b.WriteByte('\n')
	}
	return b.String()
}

// lastAtDepth reports whether no sibling follows entry i.
func lastAtDepth(depth []int, i int) bool {
	for j := i + 1; j < len(depth); j++ {
		if depth[j] < depth[i] {
			return true
		}
		if depth[j] == depth[i] {
			return false
		}
	}
	return true
}
