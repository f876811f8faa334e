package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/engine"
	"github.com/xaenox/labelbot/internal/models"
)

// sender is the part of the Telegram API the handlers need.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	send     sender
	engines  *engine.Set
	labelers map[string]labeler
	items    *itemBook
	logger   *zap.Logger
}

func New(token string, engines *engine.Set, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, engines, logger)
	b.api = api
	return b, nil
}

func newBot(send sender, engines *engine.Set, logger *zap.Logger) *Bot {
	return &Bot{
		send:    send,
		engines: engines,
		labelers: map[string]labeler{
			engine.ScopeActivity: newAdapter[engine.TagID](engines.Activity, nil),
			engine.ScopeValue:    newAdapter(engines.Value, engine.ValueClass.Valid),
			engine.ScopeEnergy:   newAdapter(engines.Energy, engine.EnergyLevel.Valid),
		},
		items:  newItemBook(),
		logger: logger,
	}
}

// Start consumes updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}
	if text == "" {
		return
	}
	b.handleItem(ctx, message.Chat.ID, engine.ScopeActivity, text)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start", "help":
		b.handleHelp(chatID)
	case "event":
		b.handleItemCommand(ctx, chatID, engine.ScopeValue, args)
	case "energy":
		b.handleItemCommand(ctx, chatID, engine.ScopeEnergy, args)
	case "label":
		b.handleLabel(ctx, chatID, args)
	case "accept":
		b.handleAccept(ctx, chatID)
	case "dismiss":
		b.handleDismiss(ctx, chatID)
	case "ignore":
		b.handleIgnore(ctx, chatID)
	case "unignore":
		b.handleUnignore(ctx, chatID)
	case "drift":
		b.handleDrift(ctx, chatID)
	case "applydrift":
		b.handleApplyDrift(ctx, chatID)
	case "dismissdrift":
		b.handleDismissDrift(ctx, chatID)
	case "patterns":
		b.handlePatterns(ctx, chatID, args)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleHelp(chatID int64) {
	help := `Send any text to log an activity. I'll suggest tags once I've learned them.

Available commands:
/event <title> - Classify a calendar event by value (high, medium, low, none)
/energy <title> - Classify a calendar event by energy (energizing, neutral, draining)
/label a, b - Label the last item
/accept - Accept the suggestion for the last item
/dismiss - Dismiss the suggestion for the last item
/ignore, /unignore - Toggle ignoring the last item
/drift - Look for activities you keep relabeling
/applydrift, /dismissdrift - Resolve the detected group
/patterns [activity|value|energy] - Show learned patterns
/help - Show this help message`

	b.sendMessage(chatID, help)
}

func (b *Bot) handleItemCommand(ctx context.Context, chatID int64, scope, text string) {
	if text == "" {
		b.sendMessage(chatID, "Please add a title, e.g. /event Weekly planning")
		return
	}
	b.handleItem(ctx, chatID, scope, text)
}

func (b *Bot) handleItem(ctx context.Context, chatID int64, scope, text string) {
	item := chatItem{ID: uuid.New().String(), Text: text, Scope: scope}
	b.items.add(chatID, item)

	out, err := b.labelers[scope].Evaluate(ctx, item.ID, text)
	if err != nil {
		b.logger.Error("Failed to evaluate item",
			zap.Error(err),
			zap.String("item_id", item.ID),
			zap.String("scope", scope))
		b.sendErrorMessage(chatID, "Sorry, I couldn't check that item. Please try again.")
		return
	}
	b.sendMessage(chatID, formatOutcome(out))
}

func (b *Bot) handleLabel(ctx context.Context, chatID int64, args string) {
	item, ok := b.items.last(chatID)
	if !ok {
		b.sendMessage(chatID, "Nothing to label yet.")
		return
	}
	labels := parseLabels(args)
	if len(labels) == 0 {
		b.sendMessage(chatID, "Usage: /label tag1, tag2")
		return
	}

	err := b.labelers[item.Scope].Label(ctx, item.ID, item.Text, labels)
	if errors.Is(err, errInvalidLabel) {
		b.sendMessage(chatID, fmt.Sprintf("Sorry, %v.", err))
		return
	}
	if err != nil {
		b.logger.Error("Failed to label item",
			zap.Error(err),
			zap.String("item_id", item.ID),
			zap.String("scope", item.Scope))
		b.sendErrorMessage(chatID, "Sorry, I couldn't save your labels. Please try again.")
		return
	}
	b.sendMessage(chatID, "Labeled: "+formatLabels(models.LabelSet(labels)))
}

func (b *Bot) handleAccept(ctx context.Context, chatID int64) {
	item, ok := b.items.last(chatID)
	if !ok {
		b.sendMessage(chatID, "Nothing to accept.")
		return
	}
	l := b.labelers[item.Scope]
	if err := l.Accept(ctx, item.ID); err != nil {
		b.replyEngineError(chatID, item, "accept", err)
		return
	}
	labels, err := l.Categorization(ctx, item.ID)
	if err != nil {
		b.replyEngineError(chatID, item, "accept", err)
		return
	}
	b.sendMessage(chatID, "Labeled: "+formatLabels(labels))
}

func (b *Bot) handleDismiss(ctx context.Context, chatID int64) {
	item, ok := b.items.last(chatID)
	if !ok {
		b.sendMessage(chatID, "Nothing to dismiss.")
		return
	}
	if err := b.labelers[item.Scope].Dismiss(ctx, item.ID); err != nil {
		b.replyEngineError(chatID, item, "dismiss", err)
		return
	}
	b.sendMessage(chatID, "Suggestion dismissed. Use /label to tag it yourself.")
}

func (b *Bot) handleIgnore(ctx context.Context, chatID int64) {
	item, ok := b.items.last(chatID)
	if !ok {
		b.sendMessage(chatID, "Nothing to ignore.")
		return
	}
	if err := b.labelers[item.Scope].Ignore(ctx, item.ID, item.Text); err != nil {
		b.replyEngineError(chatID, item, "ignore", err)
		return
	}
	b.sendMessage(chatID, "Ignored.")
}

func (b *Bot) handleUnignore(ctx context.Context, chatID int64) {
	item, ok := b.items.last(chatID)
	if !ok {
		b.sendMessage(chatID, "Nothing to unignore.")
		return
	}
	if err := b.labelers[item.Scope].Unignore(ctx, item.ID); err != nil {
		b.replyEngineError(chatID, item, "unignore", err)
		return
	}
	b.sendMessage(chatID, "No longer ignored.")
}

// liveItems returns the chat's activity items with their current labels.
func (b *Bot) liveItems(ctx context.Context, chatID int64) ([]models.LiveItem, error) {
	l := b.labelers[engine.ScopeActivity]
	var live []models.LiveItem
	for _, it := range b.items.inScope(chatID, engine.ScopeActivity) {
		labels, err := l.Categorization(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		live = append(live, models.LiveItem{ID: it.ID, Text: it.Text, Labels: labels})
	}
	return live, nil
}

func (b *Bot) handleDrift(ctx context.Context, chatID int64) {
	live, err := b.liveItems(ctx, chatID)
	if err != nil {
		b.logger.Error("Failed to load live items", zap.Error(err), zap.Int64("chat_id", chatID))
		b.sendErrorMessage(chatID, "Sorry, I couldn't check for drift.")
		return
	}
	g, err := b.engines.Activity.GetPatternSuggestion(ctx, live)
	if err != nil {
		b.logger.Error("Failed to detect drift", zap.Error(err), zap.Int64("chat_id", chatID))
		b.sendErrorMessage(chatID, "Sorry, I couldn't check for drift.")
		return
	}
	b.items.setDrift(chatID, g)
	if g == nil {
		b.sendMessage(chatID, "No relabeling pattern found.")
		return
	}
	b.sendMessage(chatID, formatDrift(g))
}

func (b *Bot) handleApplyDrift(ctx context.Context, chatID int64) {
	g := b.items.pendingDrift(chatID)
	if g == nil {
		b.sendMessage(chatID, "Run /drift first.")
		return
	}
	live, err := b.liveItems(ctx, chatID)
	if err == nil {
		var n int
		n, err = b.engines.Activity.ApplyDriftGroup(ctx, g, live)
		if err == nil {
			b.items.setDrift(chatID, nil)
			b.sendMessage(chatID, fmt.Sprintf("Relabeled %d item(s) as %s.", n, formatLabels(g.Labels)))
			return
		}
	}
	b.logger.Error("Failed to apply drift group",
		zap.Error(err),
		zap.Int64("chat_id", chatID),
		zap.String("key", g.Key))
	b.sendErrorMessage(chatID, "Sorry, I couldn't apply those labels.")
}

func (b *Bot) handleDismissDrift(ctx context.Context, chatID int64) {
	g := b.items.pendingDrift(chatID)
	if g == nil {
		b.sendMessage(chatID, "Run /drift first.")
		return
	}
	if err := b.engines.Activity.DismissPattern(ctx, g.Key); err != nil {
		b.logger.Error("Failed to dismiss drift group",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.String("key", g.Key))
		b.sendErrorMessage(chatID, "Sorry, I couldn't dismiss that pattern.")
		return
	}
	b.items.setDrift(chatID, nil)
	b.sendMessage(chatID, fmt.Sprintf("I won't suggest relabeling %q again.", g.Text))
}

func (b *Bot) handlePatterns(ctx context.Context, chatID int64, args string) {
	scope := strings.ToLower(args)
	if scope == "" {
		scope = engine.ScopeActivity
	}
	l, ok := b.labelers[scope]
	if !ok {
		b.sendMessage(chatID, "Usage: /patterns [activity|value|energy]")
		return
	}

	patterns, err := l.Patterns(ctx)
	if err != nil {
		b.logger.Error("Failed to list patterns",
			zap.Error(err),
			zap.String("scope", scope))
		b.sendErrorMessage(chatID, "Sorry, failed to retrieve patterns. Please try again later.")
		return
	}
	if len(patterns) == 0 {
		b.sendMessage(chatID, "No patterns learned yet.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatPatterns(scope, patterns))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.send.Send(msg); err != nil {
		b.logger.Error("Failed to send patterns",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) replyEngineError(chatID int64, item chatItem, op string, err error) {
	if errors.Is(err, engine.ErrNoSuggestion) {
		b.sendMessage(chatID, "There is no pending suggestion for the last item.")
		return
	}
	b.logger.Error("Engine operation failed",
		zap.Error(err),
		zap.String("op", op),
		zap.String("item_id", item.ID),
		zap.String("scope", item.Scope))
	b.sendErrorMessage(chatID, "Sorry, something went wrong. Please try again.")
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.send.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.send.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
