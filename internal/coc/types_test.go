package coc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"#abc 123", "#ABC123"},
		{"abc123", "#ABC123"},
		{"#ABC123", "#ABC123"},
		{"  ##abc123\t", "#ABC123"},
		{"", ""},
		{"   ", ""},
		{"#", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTag(tt.in), "NormalizeTag(%q)", tt.in)
	}
}

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("20240131T180000.000Z")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC), got)

	got, ok = ParseTime("2024-01-31T18:00:00+02:00")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 31, 16, 0, 0, 0, time.UTC), got)

	_, ok = ParseTime("")
	assert.False(t, ok)

	_, ok = ParseTime("tomorrow")
	assert.False(t, ok)
}

func TestWarMember_AttacksUsed(t *testing.T) {
	zero := 0
	two := 2

	assert.Equal(t, 0, WarMember{}.AttacksUsed())
	assert.Equal(t, 0, WarMember{AttackCount: &zero, Attacks: []WarAttack{{}}}.AttacksUsed(),
		"explicit count wins over the list")
	assert.Equal(t, 2, WarMember{AttackCount: &two}.AttacksUsed())
	assert.Equal(t, 1, WarMember{Attacks: []WarAttack{{Stars: 2}}}.AttacksUsed())
}
