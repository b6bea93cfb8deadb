// Package reminder decides when clan members must be reminded to use their war
// attacks and delivers those reminders to the chat groups they are bound in.
//
// A cycle fetches the war snapshot, evaluates eligibility, resolves the
// non-compliant participants to bound users per group, filters them through
// the cooldown store, sends one message per group and bumps cooldowns only for
// groups whose send succeeded. The Driver runs one cycle at a time on a ticker.
package reminder

import (
	"time"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
)

// Reasons reported by Evaluate when a reminder is not due.
const (
	ReasonInactive      = "inactive"      // war not started or already ended
	ReasonMissingEnd    = "missing_end"   // snapshot has no parseable end time
	ReasonEnded         = "deadline_past" // end time reached
	ReasonOutsideWindow = "outside_window"
	ReasonDue           = "due"
)

// Eligibility is the outcome of evaluating a war snapshot.
type Eligibility struct {
	Due       bool
	Reason    string
	Remaining time.Duration // end time minus now; zero when unknown
	// NonCompliant holds the normalized tags of members with zero attacks.
	// Order carries no meaning.
	NonCompliant []string
}

// Evaluate reports whether a reminder is due for war at now. It is due when
// the war is active and its end time lies within (now, now+window]. Members
// whose attack count, inferred from the attack list when absent, is zero are
// returned as non-compliant.
func Evaluate(war *coc.War, now time.Time, window time.Duration) Eligibility {
	if war == nil {
		return Eligibility{Reason: ReasonInactive}
	}
	switch war.State {
	case coc.StateNotInWar, coc.StateWarEnded:
		return Eligibility{Reason: ReasonInactive}
	}

	end, ok := war.EndsAt()
	if !ok {
		return Eligibility{Reason: ReasonMissingEnd}
	}

	remaining := end.Sub(now)
	if remaining <= 0 {
		return Eligibility{Reason: ReasonEnded, Remaining: remaining}
	}
	if remaining > window {
		return Eligibility{Reason: ReasonOutsideWindow, Remaining: remaining}
	}

	return Eligibility{
		Due:          true,
		Reason:       ReasonDue,
		Remaining:    remaining,
		NonCompliant: nonCompliant(war.Clan.Members),
	}
}

func nonCompliant(members []coc.WarMember) []string {
	seen := make(map[string]struct{}, len(members))
	var tags []string
	for _, m := range members {
		if m.AttacksUsed() != 0 {
			continue
		}
		tag := coc.NormalizeTag(m.Tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
