package telegram

import (
	"fmt"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stocktrigger/internal/domain"
	"stocktrigger/internal/utils"
)

// sender is the part of *tgbot.BotAPI the service needs
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// NotificationService posts executed trades to a Telegram chat. Without a bot
// it silently does nothing.
type NotificationService struct {
	bot      sender
	chatID   int64
	enabled  bool
	location *time.Location
}

// NewNotificationService connects to the Bot API. An empty token or chat id
// returns a disabled service.
func NewNotificationService(botToken string, chatID int64) (*NotificationService, error) {
	if botToken == "" || chatID == 0 {
		return &NotificationService{location: utils.GetLocation()}, nil
	}

	bot, err := tgbot.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	return newWithSender(bot, chatID), nil
}

func newWithSender(bot sender, chatID int64) *NotificationService {
	return &NotificationService{
		bot:      bot,
		chatID:   chatID,
		enabled:  bot != nil && chatID != 0,
		location: utils.GetLocation(),
	}
}

var _ domain.NotificationService = (*NotificationService)(nil)

// Enabled reports whether messages are actually sent
func (s *NotificationService) Enabled() bool {
	return s.enabled
}

// SendTrade sends a trade execution notification
func (s *NotificationService) SendTrade(trade domain.TradeRecord) error {
	if !s.enabled {
		return nil
	}

	msg := tgbot.NewMessage(s.chatID, formatTrade(trade, s.location))
	msg.ParseMode = tgbot.ModeMarkdown

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatTrade(trade domain.TradeRecord, loc *time.Location) string {
	sideEmoji := "🟢"
	if trade.Side == domain.SideSell {
		sideEmoji = "🔴"
	}

	reason := map[domain.TradeReason]string{
		domain.ReasonPriceDrop:    "Price drop",
		domain.ReasonPriceRise:    "Price rise",
		domain.ReasonProfitTarget: "Profit target",
	}[trade.Reason]
	if reason == "" {
		reason = string(trade.Reason)
	}

	return fmt.Sprintf(
		"%s *%s %s*\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"📊 Quantity: `%.4f`\n"+
			"💵 Price: `$%.2f`\n"+
			"🎯 Trigger: `$%.2f`\n"+
			"💰 Value: `$%.2f`\n"+
			"📝 Reason: %s\n"+
			"🕒 Time: `%s`",
		sideEmoji,
		trade.Side,
		trade.Symbol,
		trade.Quantity,
		trade.Price,
		trade.TriggerPrice,
		trade.Value(),
		reason,
		trade.ExecutedAt.In(loc).Format("2006-01-02 15:04:05 MST"),
	)
}
