package router

import (
	"html"
	"strings"
)

// helpText renders Telegram-friendly help in HTML parse mode.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	reg := m.commands
	order := append([]string(nil), m.order...)
	m.mu.RUnlock()

	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
		if c, ok := reg[name]; ok {
			return helpCommandHTML(c)
		}
		return "❓ <b>Unknown command</b>\nType <code>/help</code> for the list."
	}

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;command&gt;</code> for details.",
		"",
	}
	for _, name := range order {
		c := reg[name]
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		suffix := ""
		if c.Description != "" {
			suffix = " — " + html.EscapeString(c.Description)
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(name)+"</code>"+suffix)
	}
	return strings.Join(lines, "\n")
}

func helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}
	return strings.Join(lines, "\n")
}
