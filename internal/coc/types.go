package coc

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// War states reported by the game API.
const (
	StateNotInWar    = "notInWar"
	StatePreparation = "preparation"
	StateInWar       = "inWar"
	StateWarEnded    = "warEnded"
)

// timeLayout is the timestamp format used throughout the game API.
const timeLayout = "20060102T150405.000Z"

// Clan is the subset of the clan payload the bot renders.
type Clan struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	ClanLevel int    `json:"clanLevel"`
	Members   int    `json:"members"`
	WarLeague *struct {
		Name string `json:"name"`
	} `json:"warLeague"`
}

// Player is the subset of the player payload the bot renders.
type Player struct {
	Tag           string `json:"tag"`
	Name          string `json:"name"`
	TownHallLevel int    `json:"townHallLevel"`
	Trophies      int    `json:"trophies"`
	BestTrophies  int    `json:"bestTrophies"`
	Clan          *struct {
		Tag  string `json:"tag"`
		Name string `json:"name"`
	} `json:"clan"`
}

// War is a snapshot of the clan's current war.
type War struct {
	State     string  `json:"state"`
	TeamSize  int     `json:"teamSize"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Clan      WarClan `json:"clan"`
	Opponent  WarClan `json:"opponent"`
}

// WarClan is one side of a war.
type WarClan struct {
	Tag     string      `json:"tag"`
	Name    string      `json:"name"`
	Stars   int         `json:"stars"`
	Members []WarMember `json:"members"`
}

// WarMember is a participant of the war on one side.
type WarMember struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
	// AttackCount is absent from some payloads; see AttacksUsed.
	AttackCount *int        `json:"attackCount,omitempty"`
	Attacks     []WarAttack `json:"attacks,omitempty"`
}

// WarAttack is a single attack made by a member.
type WarAttack struct {
	AttackerTag           string  `json:"attackerTag"`
	DefenderTag           string  `json:"defenderTag"`
	Stars                 int     `json:"stars"`
	DestructionPercentage float64 `json:"destructionPercentage"`
}

// AttacksUsed returns the member's attack count, inferring it from the attack
// list when the count field is absent.
func (m WarMember) AttacksUsed() int {
	if m.AttackCount != nil {
		return *m.AttackCount
	}
	return len(m.Attacks)
}

// EndsAt parses the war end time. ok is false when the field is absent or
// malformed.
func (w *War) EndsAt() (t time.Time, ok bool) {
	return ParseTime(w.EndTime)
}

// ParseTime parses a game API timestamp such as 20240131T180000.000Z. RFC 3339
// is accepted as well.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// NormalizeTag returns the canonical form of a player tag: whitespace removed,
// upper-cased, with a single leading '#'. Empty input yields "".
func NormalizeTag(tag string) string {
	cleaned := strings.Join(strings.Fields(tag), "")
	cleaned = strings.TrimLeft(cleaned, "#")
	if cleaned == "" {
		return ""
	}
	// A Caser is stateful, so one is built per call.
	return "#" + cases.Upper(language.Und).String(cleaned)
}
