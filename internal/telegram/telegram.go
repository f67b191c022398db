package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dushixiang/tfc/internal/models"
	"github.com/spf13/cast"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

type Settings struct {
	Token  string
	ChatID string
	Client *http.Client
}

type Telegram struct {
	logger   *zap.Logger
	settings Settings
	client   *tele.Bot
}

type Option func(telegram *Telegram)

func NewTelegram(logger *zap.Logger, settings Settings, options ...Option) (*Telegram, error) {
	poller := &tele.LongPoller{Timeout: 10 * time.Second}

	client, err := tele.NewBot(tele.Settings{
		ParseMode: tele.ModeMarkdownV2,
		Token:     settings.Token,
		Poller:    poller,
		Client:    settings.Client,
	})
	if err != nil {
		return nil, err
	}

	client.Use(middleware.AutoRespond())

	bot := &Telegram{
		logger:   logger,
		settings: settings,
		client:   client,
	}

	for _, option := range options {
		option(bot)
	}

	return bot, nil
}

func (r *Telegram) Start() {
	go r.client.Start()
}

func (r *Telegram) Stop() {
	r.client.Stop()
}

func (r *Telegram) Notify(chatId, msg string) error {
	_chatId := cast.ToInt64(chatId)
	_, err := r.client.Send(tele.ChatID(_chatId), msg, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2})
	return err
}

const fightFinishedTemplate = `*Fight finished* {{fight_id}}
Result: {{result}}
Stake: {{stake}}
{{slot_a}}: {{score_a}}%
{{slot_b}}: {{score_b}}%`

// NotifyFightFinished 推送对战结果到管理员频道
func (r *Telegram) NotifyFightFinished(ctx context.Context, fight models.Fight, participants []models.FightParticipant) error {
	msg := FormatFightFinished(fight, participants)
	if err := r.Notify(r.settings.ChatID, msg); err != nil {
		r.logger.Warn("telegram notify failed", zap.String("fight_id", fight.ID), zap.Error(err))
		return err
	}
	return nil
}

// FormatFightFinished 生成对战结果消息
func FormatFightFinished(fight models.Fight, participants []models.FightParticipant) string {
	result := "draw"
	if !fight.IsDraw && fight.WinnerID != "" {
		result = "winner " + fight.WinnerID
	}
	if fight.Status != models.FightStatusFinished {
		result = string(fight.Status)
	}

	values := map[string]interface{}{
		"fight_id": escapeMarkdownV2(fight.ID),
		"result":   escapeMarkdownV2(result),
		"stake":    escapeMarkdownV2(fmt.Sprintf("%.2f", fight.StakeAmount)),
		"slot_a":   "-",
		"score_a":  "0",
		"slot_b":   "-",
		"score_b":  "0",
	}
	for _, p := range participants {
		score := escapeMarkdownV2(fmt.Sprintf("%.4f", p.FinalPnlPercent))
		switch p.Slot {
		case models.SlotA:
			values["slot_a"] = escapeMarkdownV2(p.UserID)
			values["score_a"] = score
		case models.SlotB:
			values["slot_b"] = escapeMarkdownV2(p.UserID)
			values["score_b"] = score
		}
	}

	tmpl := fasttemplate.New(fightFinishedTemplate, "{{", "}}")
	return tmpl.ExecuteString(values)
}
