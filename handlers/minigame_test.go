package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperreflector/signal-server/models"
)

func newMiniGameFixture(t *testing.T, invite, choice, cooldown time.Duration) (*Registry, *MiniGameManager, *fakeAccount) {
	t.Helper()
	registry := NewRegistry()
	api := newFakeAccount()
	games := NewMiniGameManager(registry, api, invite, choice, cooldown)
	t.Cleanup(games.Stop)
	return registry, games, api
}

func challengeOf(t *testing.T, transport *fakeTransport) map[string]any {
	t.Helper()
	event, ok := transport.lastOfType(models.EvtMiniGameChallenge)
	require.True(t, ok)
	return event
}

func TestMiniGameChallengeReachesBothPlayers(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	bob := admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{
		ChallengerID: "u1",
		OpponentID:   "u2",
		GameType:     "rps",
	})

	invite := challengeOf(t, alice)
	assert.Equal(t, string(models.PhaseInvite), invite["phase"])
	assert.NotEmpty(t, invite["sessionId"])
	assert.Equal(t, invite, challengeOf(t, bob))
	assert.Equal(t, 1, games.SessionCount())
}

func TestMiniGameChallengeDeniedWhenMuted(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")
	registry.Patch("u2", models.UserPatch{MutedUsers: []string{"u1"}})

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})

	denied, ok := alice.lastOfType(models.EvtMiniGameDenied)
	require.True(t, ok)
	assert.Equal(t, "muted", denied["reason"])
	assert.Equal(t, 0, games.SessionCount())
}

func TestMiniGameChallengeUnsupportedGameType(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "coinflip"})

	denied, ok := alice.lastOfType(models.EvtMiniGameDenied)
	require.True(t, ok)
	assert.Equal(t, "unsupported", denied["reason"])
	assert.Equal(t, 0, games.SessionCount())
}

func TestMiniGameChallengeDeniedWhilePending(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	admitUser(registry, "u1")
	bob := admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	// The reverse direction counts as the same pair.
	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u2", OpponentID: "u1", GameType: "rps"})

	denied, ok := bob.lastOfType(models.EvtMiniGameDenied)
	require.True(t, ok)
	assert.Equal(t, "pending", denied["reason"])
	assert.Equal(t, 1, games.SessionCount())
}

func TestMiniGameFullRound(t *testing.T) {
	registry, games, api := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	bob := admitUser(registry, "u2")
	registry.Patch("u1", models.UserPatch{RpsElo: models.Int(1300)})
	api.rpsRatings = map[string]int{"u1": 1310, "u2": 1195}

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)

	games.Accept(models.MiniGameAcceptMessage{SessionID: sessionID, PlayerID: "u2"})
	active := challengeOf(t, bob)
	assert.Equal(t, string(models.PhaseActive), active["phase"])

	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u1", Choice: models.ChoiceRock})
	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u2", Choice: models.ChoiceScissors})

	assert.Eventually(t, func() bool {
		_, ok := alice.lastOfType(models.EvtMiniGameResult)
		return ok
	}, time.Second, 10*time.Millisecond)

	result, _ := alice.lastOfType(models.EvtMiniGameResult)
	assert.Equal(t, models.OutcomeWin, result["outcome"])
	assert.Equal(t, "u1", result["winnerUid"])
	assert.Equal(t, "u2", result["loserUid"])

	ratings := result["ratings"].(map[string]any)
	assert.Equal(t, float64(1310), ratings["u1"])
	changes := result["ratingChanges"].(map[string]any)
	assert.Equal(t, float64(10), changes["u1"], "delta against cached 1300")
	assert.Equal(t, float64(-5), changes["u2"], "delta against default rating")

	user, _ := registry.Get("u1")
	assert.Equal(t, 1310, user.RpsElo)
	assert.Equal(t, 0, games.SessionCount())

	_, ok := bob.lastOfType(models.EvtMiniGameResult)
	assert.True(t, ok)
}

func TestMiniGameAcceptOnlyByOpponent(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)

	games.Accept(models.MiniGameAcceptMessage{SessionID: sessionID, PlayerID: "u1"})
	invite := challengeOf(t, alice)
	assert.Equal(t, string(models.PhaseInvite), invite["phase"])
}

func TestMiniGameChoiceIgnoredDuringInvite(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)

	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u1", Choice: models.ChoiceRock})
	assert.Equal(t, 1, games.SessionCount(), "session must survive a premature choice")
}

func TestMiniGameDeclineArmsDirectionalCooldown(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	bob := admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)
	games.Decline(models.MiniGameDeclineMessage{SessionID: sessionID, PlayerID: "u2"})

	assert.Eventually(t, func() bool {
		event, ok := alice.lastOfType(models.EvtMiniGameResult)
		return ok && event["outcome"] == models.OutcomeDeclined && event["actorId"] == "u2"
	}, time.Second, 10*time.Millisecond)

	// Re-challenging in the declined direction is blocked with a retry hint.
	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	denied, ok := alice.lastOfType(models.EvtMiniGameDenied)
	require.True(t, ok)
	assert.Equal(t, "cooldown", denied["reason"])
	assert.Greater(t, denied["retryInMs"], float64(0))

	// The other direction is free.
	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u2", OpponentID: "u1", GameType: "rps"})
	_, ok = bob.lastOfType(models.EvtMiniGameChallenge)
	assert.True(t, ok)
	assert.Equal(t, 1, games.SessionCount())
}

func TestMiniGameInviteTimeoutIsDeclined(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, 30*time.Millisecond, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})

	assert.Eventually(t, func() bool {
		event, ok := alice.lastOfType(models.EvtMiniGameResult)
		return ok && event["outcome"] == models.OutcomeDeclined
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, games.SessionCount())

	// An ignored invite is attributed to the silent opponent, and both
	// players appear in the empty choice set.
	result, _ := alice.lastOfType(models.EvtMiniGameResult)
	assert.Equal(t, "u2", result["actorId"])
	choices := result["choices"].(map[string]any)
	require.Len(t, choices, 2)
	assert.Nil(t, choices["u1"])
	assert.Nil(t, choices["u2"])
}

func TestMiniGameCooldownAfterCompletedRound(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)
	games.Accept(models.MiniGameAcceptMessage{SessionID: sessionID, PlayerID: "u2"})
	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u1", Choice: models.ChoiceRock})
	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u2", Choice: models.ChoiceScissors})

	assert.Eventually(t, func() bool {
		_, ok := alice.lastOfType(models.EvtMiniGameResult)
		return ok
	}, time.Second, 10*time.Millisecond)

	// A finished round rate-limits the same direction like any other
	// termination.
	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	denied, ok := alice.lastOfType(models.EvtMiniGameDenied)
	require.True(t, ok)
	assert.Equal(t, "cooldown", denied["reason"])
	assert.Greater(t, denied["retryInMs"], float64(0))
	assert.Equal(t, 0, games.SessionCount())
}

func TestMiniGameChoiceTimeoutForfeits(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, 30*time.Millisecond, time.Hour)
	alice := admitUser(registry, "u1")
	bob := admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)
	games.Accept(models.MiniGameAcceptMessage{SessionID: sessionID, PlayerID: "u2"})
	games.Choice(models.MiniGameChoiceMessage{SessionID: sessionID, PlayerID: "u1", Choice: models.ChoicePaper})

	assert.Eventually(t, func() bool {
		event, ok := bob.lastOfType(models.EvtMiniGameResult)
		return ok && event["outcome"] == models.OutcomeForfeit && event["winnerUid"] == "u1"
	}, time.Second, 10*time.Millisecond)
}

func TestMiniGameDropUserForfeitsActiveSession(t *testing.T) {
	registry, games, _ := newMiniGameFixture(t, time.Hour, time.Hour, time.Hour)
	alice := admitUser(registry, "u1")
	admitUser(registry, "u2")

	games.Challenge(models.MiniGameChallengeMessage{ChallengerID: "u1", OpponentID: "u2", GameType: "rps"})
	sessionID := challengeOf(t, alice)["sessionId"].(string)
	games.Accept(models.MiniGameAcceptMessage{SessionID: sessionID, PlayerID: "u2"})

	games.DropUser("u2")

	assert.Eventually(t, func() bool {
		event, ok := alice.lastOfType(models.EvtMiniGameResult)
		return ok && event["winnerUid"] == "u1"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, games.SessionCount())
}
