package telegram

import (
	"testing"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `19\.0000`, escapeMarkdownV2("19.0000"))
	assert.Equal(t, `user\_1 \(A\)`, escapeMarkdownV2("user_1 (A)"))
	assert.Equal(t, `\-0\.5`, escapeMarkdownV2("-0.5"))
}

func TestFormatFightFinished(t *testing.T) {
	fight := models.Fight{ID: "01JFIGHT", Status: models.FightStatusFinished, WinnerID: "alice", StakeAmount: 25}
	participants := []models.FightParticipant{
		{UserID: "bob", Slot: models.SlotB, FinalPnlPercent: -1.25},
		{UserID: "alice", Slot: models.SlotA, FinalPnlPercent: 19},
	}

	msg := FormatFightFinished(fight, participants)
	assert.Contains(t, msg, "01JFIGHT")
	assert.Contains(t, msg, "Result: winner alice")
	assert.Contains(t, msg, `Stake: 25\.00`)
	assert.Contains(t, msg, `alice: 19\.0000%`)
	assert.Contains(t, msg, `bob: \-1\.2500%`)
}

func TestFormatFightFinished_Draw(t *testing.T) {
	msg := FormatFightFinished(models.Fight{ID: "f", Status: models.FightStatusFinished, IsDraw: true}, nil)
	assert.Contains(t, msg, "Result: draw")

	msg = FormatFightFinished(models.Fight{ID: "f", Status: models.FightStatusNoContest}, nil)
	assert.Contains(t, msg, `Result: NO\_CONTEST`)
}
