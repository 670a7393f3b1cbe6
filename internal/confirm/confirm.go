// Package confirm implements the dual-channel confirmation race:
// a native dialog subprocess and a Telegram inline-keyboard chat
// message race for the first operator response, with the loser
// cancelled. Grounded on internal/bot/order.go's ExecuteParallel
// select-based fan-in (first-of-N, cancel-the-rest), here racing a
// dialog subprocess channel (os/exec) against a
// go-telegram-bot-api/v5 channel instead of two exchange legs.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"arbitrage/internal/config"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Request describes one confirmation prompt.
type Request struct {
	ID            string
	Prompt        string
	Options       []string // button labels, also valid action values
	DefaultOption string
}

type raceResult struct {
	action string
	source models.ConfirmationSource
	err    error
}

// Manager runs the dialog-vs-chat confirmation race.
type Manager struct {
	cfg config.ConfirmationConfig
	bot *tgbotapi.BotAPI
	log *utils.Logger

	mu      sync.Mutex
	pending map[string]chan raceResult

	stopCh chan struct{}
}

// New builds a Manager. The Telegram bot is optional: if
// cfg.TelegramBotToken is empty, the chat channel is skipped and the
// race runs dialog-vs-timeout only.
func New(cfg config.ConfirmationConfig, log *utils.Logger) (*Manager, error) {
	m := &Manager{cfg: cfg, log: log, pending: make(map[string]chan raceResult), stopCh: make(chan struct{})}

	if cfg.TelegramBotToken == "" {
		return m, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("confirm: telegram bot init: %w", err)
	}
	m.bot = bot
	go m.runUpdateLoop()
	return m, nil
}

// Stop ends the Telegram update-polling loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// Severity classifies a Notify message for the operator's attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notify pushes a notify-only message (no expected response) through
// the chat channel, used for ROLLBACK_FAILED_CRITICAL and split-brain
// self-demotion alerts that need an operator's eyes but not a decision.
func (m *Manager) Notify(ctx context.Context, message string, severity Severity) {
	if m.bot == nil {
		if m.log != nil {
			m.log.Warn("confirm: notify with no chat channel configured", utils.String("message", message), utils.String("severity", string(severity)))
		}
		return
	}
	text := fmt.Sprintf("[%s] %s", strings.ToUpper(string(severity)), message)
	msg := tgbotapi.NewMessage(m.cfg.TelegramChatID, text)
	if _, err := m.bot.Send(msg); err != nil && m.log != nil {
		m.log.Error("confirm: notify send failed", utils.Err(err))
	}
}

// runUpdateLoop dispatches incoming callback queries to whichever
// pending confirmation their payload ("confirm:{id}:{action}") names.
func (m *Manager) runUpdateLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := m.bot.GetUpdatesChan(u)

	for {
		select {
		case <-m.stopCh:
			return
		case update := <-updates:
			if update.CallbackQuery == nil {
				continue
			}
			m.handleCallback(update.CallbackQuery)
		}
	}
}

func (m *Manager) handleCallback(cb *tgbotapi.CallbackQuery) {
	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) != 3 || parts[0] != "confirm" {
		return
	}
	id, action := parts[1], parts[2]

	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()

	ack := tgbotapi.NewCallback(cb.ID, "")
	if !ok {
		ack.Text = "This confirmation has already expired."
		m.bot.Request(ack)
		return
	}
	m.bot.Request(ack)

	select {
	case ch <- raceResult{action: action, source: models.SourceChat}:
	default:
	}
}

// Request races the dialog and chat channels (plus a timeout) and
// returns the first resolution, cancelling the loser.
func (m *Manager) Request(ctx context.Context, req Request) *models.ConfirmationResult {
	started := time.Now()
	timeout := time.Duration(m.cfg.TimeoutSeconds) * time.Second
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan raceResult, 2)

	go func() {
		action, err := m.runDialog(raceCtx, req)
		resultCh <- raceResult{action: action, source: models.SourceDialog, err: err}
	}()

	chatRegistered := false
	var msgID int
	if m.bot != nil {
		var err error
		msgID, err = m.sendChatPrompt(req)
		if err != nil {
			if m.log != nil {
				m.log.Error("confirm: chat channel send failed, dialog-only race", utils.Err(err))
			}
		} else {
			chatRegistered = true
			ch := make(chan raceResult, 1)
			m.mu.Lock()
			m.pending[req.ID] = ch
			m.mu.Unlock()
			go func() {
				select {
				case r := <-ch:
					resultCh <- r
				case <-raceCtx.Done():
				}
			}()
		}
	}

	var winner raceResult
	select {
	case winner = <-resultCh:
	case <-raceCtx.Done():
		winner = raceResult{action: req.DefaultOption, source: models.SourceTimeout}
	}

	if chatRegistered {
		m.mu.Lock()
		delete(m.pending, req.ID)
		m.mu.Unlock()
		if winner.source != models.SourceChat {
			m.closeChatPrompt(msgID, winner.action)
		}
	}

	if winner.err != nil && winner.action == "" {
		winner = raceResult{action: req.DefaultOption, source: models.SourceError}
	}

	responseTime := time.Since(started)
	metrics.RecordConfirmation(string(winner.source), float64(responseTime.Milliseconds()))

	return &models.ConfirmationResult{
		Action:       winner.action,
		Source:       winner.source,
		ResponseTime: responseTime,
	}
}

// runDialog spawns the native dialog subprocess, parsing its stdout's
// first line as the chosen button label. Killed via ctx cancellation
// if the chat channel (or timeout) wins the race first.
func (m *Manager) runDialog(ctx context.Context, req Request) (string, error) {
	if m.cfg.DialogBinary == "" {
		<-ctx.Done()
		return "", fmt.Errorf("dialog binary not configured")
	}

	args := append([]string{req.Prompt}, req.Options...)
	cmd := exec.CommandContext(ctx, m.cfg.DialogBinary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(stdout)
	var line string
	if scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err() // cancelled because another channel won
		}
		return "", err
	}
	if line == "" {
		return "", fmt.Errorf("dialog produced no selection")
	}
	return line, nil
}

// sendChatPrompt sends the inline-keyboard message and returns its
// message id for later editing.
func (m *Manager) sendChatPrompt(req Request) (int, error) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range req.Options {
		data := fmt.Sprintf("confirm:%s:%s", req.ID, opt)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt, data)))
	}
	msg := tgbotapi.NewMessage(m.cfg.TelegramChatID, req.Prompt)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	sent, err := m.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// closeChatPrompt edits the chat message to show the resolution and
// removes its keyboard, called when the chat channel lost the race.
func (m *Manager) closeChatPrompt(msgID int, resolvedAction string) {
	if m.bot == nil || msgID == 0 {
		return
	}
	text := fmt.Sprintf("Resolved: %s", resolvedAction)
	edit := tgbotapi.NewEditMessageText(m.cfg.TelegramChatID, msgID, text)
	m.bot.Send(edit)

	markup := tgbotapi.NewEditMessageReplyMarkup(m.cfg.TelegramChatID, msgID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	m.bot.Send(markup)
}

// parseChatID is a small helper for config loaders that carry the chat
// id as a string env var.
func parseChatID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
