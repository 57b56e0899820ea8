package models

// MiniGameChoice is a rock-paper-scissors hand.
type MiniGameChoice string

const (
	ChoiceRock     MiniGameChoice = "rock"
	ChoicePaper    MiniGameChoice = "paper"
	ChoiceScissors MiniGameChoice = "scissors"
)

// Valid reports whether the choice is one of the three legal hands.
func (c MiniGameChoice) Valid() bool {
	switch c {
	case ChoiceRock, ChoicePaper, ChoiceScissors:
		return true
	}
	return false
}

// rpsBeats maps each hand to the hand it defeats.
var rpsBeats = map[MiniGameChoice]MiniGameChoice{
	ChoiceRock:     ChoiceScissors,
	ChoicePaper:    ChoiceRock,
	ChoiceScissors: ChoicePaper,
}

// MiniGamePhase is the lifecycle phase of a challenge session.
type MiniGamePhase string

const (
	PhaseInvite MiniGamePhase = "invite"
	PhaseActive MiniGamePhase = "active"
)

// RPS session outcomes.
const (
	OutcomeWin      = "win"
	OutcomeDraw     = "draw"
	OutcomeForfeit  = "forfeit"
	OutcomeDeclined = "declined"
)

// Session participant roles used by EvaluateRps.
const (
	RoleChallenger = "challenger"
	RoleOpponent   = "opponent"
)

// RpsVerdict is the result of evaluating two (possibly missing) choices.
type RpsVerdict struct {
	Winner  string // RoleChallenger, RoleOpponent, or empty on a draw
	Outcome string
}

// EvaluateRps resolves a finished round. A single missing choice forfeits to
// the silent party; both missing is a draw.
func EvaluateRps(challengerChoice, opponentChoice MiniGameChoice) RpsVerdict {
	switch {
	case challengerChoice == "" && opponentChoice == "":
		return RpsVerdict{Outcome: OutcomeDraw}
	case challengerChoice != "" && opponentChoice == "":
		return RpsVerdict{Winner: RoleChallenger, Outcome: OutcomeForfeit}
	case challengerChoice == "" && opponentChoice != "":
		return RpsVerdict{Winner: RoleOpponent, Outcome: OutcomeForfeit}
	case challengerChoice == opponentChoice:
		return RpsVerdict{Outcome: OutcomeDraw}
	}
	if rpsBeats[challengerChoice] == opponentChoice {
		return RpsVerdict{Winner: RoleChallenger, Outcome: OutcomeWin}
	}
	return RpsVerdict{Winner: RoleOpponent, Outcome: OutcomeWin}
}
