package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

const na = "N/A"

func formatClan(c *coc.Clan) string {
	league := na
	if c.WarLeague != nil && c.WarLeague.Name != "" {
		league = c.WarLeague.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", esc(or(c.Name, "Clan")))
	fmt.Fprintf(&b, "Tag: <code>%s</code>\n", esc(or(c.Tag, na)))
	fmt.Fprintf(&b, "Level: %d\n", c.ClanLevel)
	fmt.Fprintf(&b, "Members: %d\n", c.Members)
	fmt.Fprintf(&b, "War League: %s\n", esc(league))
	return b.String()
}

func formatPlayer(p *coc.Player) string {
	clan := "No clan"
	if p.Clan != nil && p.Clan.Name != "" {
		clan = p.Clan.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", esc(or(p.Name, "Player")))
	fmt.Fprintf(&b, "Tag: <code>%s</code>\n", esc(or(p.Tag, na)))
	fmt.Fprintf(&b, "Town Hall: %d\n", p.TownHallLevel)
	fmt.Fprintf(&b, "Trophies: %d\n", p.Trophies)
	fmt.Fprintf(&b, "Best Trophies: %d\n", p.BestTrophies)
	fmt.Fprintf(&b, "Clan: %s\n", esc(clan))
	return b.String()
}

// formatWar renders the war status. Remaining time and pending attackers are
// shown while the war is running.
func formatWar(w *coc.War, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>Current War</b>\n")
	fmt.Fprintf(&b, "State: %s\n", esc(or(w.State, na)))
	if w.State == coc.StateNotInWar {
		return b.String()
	}
	if w.Opponent.Name != "" {
		fmt.Fprintf(&b, "Opponent: %s\n", esc(w.Opponent.Name))
	}
	fmt.Fprintf(&b, "Team Size: %d\n", w.TeamSize)
	fmt.Fprintf(&b, "Start: %s\n", formatGameTime(w.StartTime))
	fmt.Fprintf(&b, "End: %s\n", formatGameTime(w.EndTime))
	if w.State == coc.StateInWar || w.State == coc.StateWarEnded {
		fmt.Fprintf(&b, "Stars: %d - %d\n", w.Clan.Stars, w.Opponent.Stars)
	}
	if w.State == coc.StateInWar {
		if end, ok := w.EndsAt(); ok && end.After(now) {
			fmt.Fprintf(&b, "Ends in: %s\n", formatRemaining(end.Sub(now)))
		}
		pending := 0
		for _, m := range w.Clan.Members {
			if m.AttacksUsed() == 0 {
				pending++
			}
		}
		fmt.Fprintf(&b, "Members without attacks: %d\n", pending)
	}
	return b.String()
}

func formatBindings(bindings []store.Binding) string {
	if len(bindings) == 0 {
		return "No bindings in this group yet. Use /bind &lt;player_tag&gt;."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Bindings in this group (%d)</b>\n", len(bindings))
	for _, binding := range bindings {
		name := esc(binding.DisplayName)
		if binding.Username != "" {
			name += " (@" + esc(binding.Username) + ")"
		}
		fmt.Fprintf(&b, "%s: <code>%s</code>\n", name, esc(binding.PlayerTag))
	}
	return b.String()
}

func formatGameTime(value string) string {
	t, ok := coc.ParseTime(value)
	if !ok {
		return na
	}
	return t.Format("2006-01-02 15:04 UTC")
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}

func esc(s string) string { return html.EscapeString(s) }

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
