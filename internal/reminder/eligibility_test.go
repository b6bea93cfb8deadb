package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
)

var testNow = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

func gameTime(t time.Time) string {
	return t.UTC().Format("20060102T150405.000Z")
}

func intPtr(n int) *int { return &n }

func member(tag string, attacks int) coc.WarMember {
	return coc.WarMember{Tag: tag, Name: tag, AttackCount: intPtr(attacks)}
}

func warEndingIn(d time.Duration, members ...coc.WarMember) *coc.War {
	return &coc.War{
		State:   coc.StateInWar,
		EndTime: gameTime(testNow.Add(d)),
		Clan:    coc.WarClan{Tag: "#CLAN", Members: members},
	}
}

func TestEvaluate_InactiveStates(t *testing.T) {
	for _, state := range []string{coc.StateNotInWar, coc.StateWarEnded} {
		for _, d := range []time.Duration{-time.Hour, time.Hour, 10 * time.Hour} {
			war := warEndingIn(d, member("#A", 0))
			war.State = state

			got := Evaluate(war, testNow, 4*time.Hour)
			assert.False(t, got.Due, "state=%s remaining=%s", state, d)
			assert.Equal(t, ReasonInactive, got.Reason)
		}
	}
}

func TestEvaluate_Window(t *testing.T) {
	window := 4 * time.Hour
	tests := []struct {
		remaining time.Duration
		due       bool
		reason    string
	}{
		{-time.Minute, false, ReasonEnded},
		{0, false, ReasonEnded},
		{time.Second, true, ReasonDue},
		{2 * time.Hour, true, ReasonDue},
		{window, true, ReasonDue},
		{window + time.Second, false, ReasonOutsideWindow},
		{24 * time.Hour, false, ReasonOutsideWindow},
	}
	for _, tt := range tests {
		t.Run(tt.remaining.String(), func(t *testing.T) {
			got := Evaluate(warEndingIn(tt.remaining, member("#A", 0)), testNow, window)
			assert.Equal(t, tt.due, got.Due)
			assert.Equal(t, tt.reason, got.Reason)
			if !tt.due {
				assert.Empty(t, got.NonCompliant)
			}
		})
	}
}

func TestEvaluate_PreparationUsesWindow(t *testing.T) {
	war := warEndingIn(time.Hour, member("#A", 0))
	war.State = coc.StatePreparation

	got := Evaluate(war, testNow, 4*time.Hour)
	assert.True(t, got.Due)
}

func TestEvaluate_MissingEndTime(t *testing.T) {
	for _, end := range []string{"", "not-a-time"} {
		war := warEndingIn(time.Hour, member("#A", 0))
		war.EndTime = end

		got := Evaluate(war, testNow, 4*time.Hour)
		assert.False(t, got.Due)
		assert.Equal(t, ReasonMissingEnd, got.Reason)
	}
}

func TestEvaluate_NilSnapshot(t *testing.T) {
	assert.False(t, Evaluate(nil, testNow, time.Hour).Due)
}

func TestEvaluate_NonCompliant(t *testing.T) {
	war := warEndingIn(2*time.Hour,
		member("#a1", 0),
		member("#B2", 1),
		member("  c 3 ", 0),
		member("#D4", 2),
		coc.WarMember{Tag: "#E5", Attacks: []coc.WarAttack{{Stars: 3}}}, // count inferred as 1
		coc.WarMember{Tag: "#F6"},                                          // no count, no attacks
		member("#A1", 0),                                                   // duplicate after normalization
		member("#", 0),                                                     // empty tag
	)

	got := Evaluate(war, testNow, 4*time.Hour)
	assert.True(t, got.Due)
	assert.ElementsMatch(t, []string{"#A1", "#C3", "#F6"}, got.NonCompliant)
	assert.Equal(t, 2*time.Hour, got.Remaining)
}

func TestEvaluate_EveryoneAttacked(t *testing.T) {
	got := Evaluate(warEndingIn(time.Hour, member("#A", 1), member("#B", 2)), testNow, 4*time.Hour)
	assert.True(t, got.Due)
	assert.Empty(t, got.NonCompliant)
}

func TestEvaluate_TagFormattingDoesNotMatter(t *testing.T) {
	for _, tag := range []string{"#abc 123", "abc123", "#ABC123"} {
		got := Evaluate(warEndingIn(time.Hour, member(tag, 0)), testNow, 4*time.Hour)
		assert.Equal(t, []string{"#ABC123"}, got.NonCompliant, "tag %q", tag)
	}
}
