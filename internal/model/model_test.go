package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserStatusValid(t *testing.T) {
	for _, s := range []UserStatus{StatusOnline, StatusOffline, StatusAway, StatusBusy} {
		require.True(t, s.Valid(), s)
	}
	require.False(t, UserStatus("").Valid())
	require.False(t, UserStatus("Online").Valid())
}

func TestSameParticipants(t *testing.T) {
	c := Conversation{Participants: []string{"a", "b", "c"}}
	require.True(t, c.SameParticipants([]string{"c", "a", "b"}))
	require.False(t, c.SameParticipants([]string{"a", "b"}))
	require.False(t, c.SameParticipants([]string{"a", "b", "d"}))
	require.True(t, c.HasParticipant("b"))
	require.False(t, c.HasParticipant("z"))
}
