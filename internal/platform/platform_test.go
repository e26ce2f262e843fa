package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGameMode(t *testing.T) {
	tests := []struct {
		in   string
		want GameMode
		err  bool
	}{
		{"creative", Creative, false},
		{" SURVIVAL ", Survival, false},
		{"2", Adventure, false},
		{"3", Spectator, false},
		{"4", "", true},
		{"hardcore", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGameMode(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidPlayerName(t *testing.T) {
	assert.True(t, ValidPlayerName("alex"))
	assert.True(t, ValidPlayerName("Steve_2009"))
	assert.False(t, ValidPlayerName(""))
	assert.False(t, ValidPlayerName("seventeen_chars__"))
	assert.False(t, ValidPlayerName("alex\nstop"))
	assert.False(t, ValidPlayerName("alex stop"))
}

func TestFindPlayer(t *testing.T) {
	players := []Player{{Name: "alex", UUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5"}, {Name: "steve"}}

	p, ok := FindPlayer(players, "ALEX")
	require.True(t, ok)
	assert.Equal(t, "alex", p.Name)

	p, ok = FindPlayer(players, "069A79F4-44E9-4726-A5BE-FCA90E38AAF5")
	require.True(t, ok)
	assert.Equal(t, "alex", p.Name)

	_, ok = FindPlayer(players, "eve")
	assert.False(t, ok)
	_, ok = FindPlayer(players, "")
	assert.False(t, ok)
}
