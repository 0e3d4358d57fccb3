package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/irfndi/pcr-tracker-go/internal/format"
	"github.com/irfndi/pcr-tracker-go/internal/models"
)

// TrendNotifier is told when a new row flips the trend label.
type TrendNotifier interface {
	NotifyTrendChange(ctx context.Context, previous models.Trend, row models.ReconciledRow) error
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotifier posts trend changes to one chat.
type TelegramNotifier struct {
	sender   messageSender
	chatID   int64
	symbol   string
	recovery *ErrorRecoveryManager
}

// NewTelegramNotifier connects a bot with token. The token is not verified
// against the API until the first message.
func NewTelegramNotifier(token string, chatID int64, symbol string, recovery *ErrorRecoveryManager) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramNotifier(b, chatID, symbol, recovery), nil
}

func newTelegramNotifier(sender messageSender, chatID int64, symbol string, recovery *ErrorRecoveryManager) *TelegramNotifier {
	if recovery == nil {
		recovery = NewErrorRecoveryManager(nil)
	}
	return &TelegramNotifier{sender: sender, chatID: chatID, symbol: symbol, recovery: recovery}
}

func (n *TelegramNotifier) NotifyTrendChange(ctx context.Context, previous models.Trend, row models.ReconciledRow) error {
	text := formatTrendChange(n.symbol, previous, row)
	return n.recovery.ExecuteWithRetry(ctx, "notify", func() error {
		_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		return err
	})
}

// SendTest posts a short message confirming the bot can reach the chat.
func (n *TelegramNotifier) SendTest(ctx context.Context) error {
	text := "PCR tracker alerts are configured"
	if n.symbol != "" {
		text += " for " + n.symbol
	}
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send test message: %w", err)
	}
	return nil
}

func formatTrendChange(symbol string, previous models.Trend, row models.ReconciledRow) string {
	var b strings.Builder
	title := "PCR trend change"
	if symbol != "" {
		title += " - " + symbol
	}
	fmt.Fprintf(&b, "*%s*\n\n", title)
	fmt.Fprintf(&b, "%s -> *%s*\n", previous, row.Trend)
	fmt.Fprintf(&b, "%s\n\n", row.Observation)
	fmt.Fprintf(&b, "Put Change OI: %s\n", format.Int(row.IntradayPutOIChange))
	fmt.Fprintf(&b, "Call Change OI: %s\n", format.Int(row.IntradayCallOIChange))
	if row.UnderlyingPrice > 0 {
		fmt.Fprintf(&b, "Price: %s (%s%%)\n", format.Int(row.UnderlyingPrice), format.Decimal(row.PriceChangePercent))
	}
	fmt.Fprintf(&b, "\n%s", row.Timestamp.Format("2006-01-02 15:04 MST"))
	return b.String()
}
