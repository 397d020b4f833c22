package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"papershort/src/model"
	"papershort/src/repository"
)

// Replacement describes the position evicted to make room for an entry.
type Replacement struct {
	Symbol          string
	LatestReturnPct float64
}

// Notifier is the outbound notification surface the engine calls. Delivery
// failures are logged and swallowed: a lost message never fails a cycle.
type Notifier interface {
	NotifyEntry(ctx context.Context, position *model.Position, replaced *Replacement)
	NotifyExit(ctx context.Context, position *model.Position, trade *model.Trade)
	NotifyScanSkipped(ctx context.Context, trigger, reason string)
}

// TelegramNotifier sends messages through the Telegram bot API and records
// every attempt in the alerts audit table, delivered or not.
type TelegramNotifier struct {
	cfg    Config
	http   *resty.Client
	alerts *repository.AlertRepository
}

func NewTelegramNotifier(cfg Config, alerts *repository.AlertRepository) *TelegramNotifier {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.HTTPTimeout)

	return &TelegramNotifier{cfg: cfg, http: httpClient, alerts: alerts}
}

type sendMessageResponse struct {
	Ok     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// send delivers one message and records the alert row. Returns nothing: the
// caller never reacts to delivery failures.
func (n *TelegramNotifier) send(ctx context.Context, kind, text string, positionID *uint) {
	var messageID *int64

	if n.cfg.Enabled {
		var out sendMessageResponse
		resp, err := n.http.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"chat_id": n.cfg.ChatID,
				"text":    text,
			}).
			SetResult(&out).
			Post(fmt.Sprintf("/bot%s/sendMessage", n.cfg.BotToken))

		switch {
		case err != nil:
			logger.WithError(err).WithField("kind", kind).Error("Telegram send failed")
		case resp.StatusCode() != 200 || !out.Ok:
			logger.WithFields(logger.Fields{
				"kind":        kind,
				"status":      resp.StatusCode(),
				"description": out.Description,
			}).Error("Telegram rejected message")
		default:
			messageID = &out.Result.MessageID
		}
	}

	alert := &model.Alert{
		Kind:       kind,
		Text:       text,
		PositionID: positionID,
		MessageID:  messageID,
	}
	if err := n.alerts.Insert(ctx, alert); err != nil {
		logger.WithError(err).WithField("kind", kind).Error("Failed to record alert")
	}
}

func (n *TelegramNotifier) NotifyEntry(ctx context.Context, position *model.Position, replaced *Replacement) {
	kind := model.AlertKindEntry

	var b strings.Builder
	fmt.Fprintf(&b, "SHORT %s @ %s\n", position.Symbol, formatPrice(position.EntryPrice))
	fmt.Fprintf(&b, "margin %.2f USD, %gx → notional %.2f USD\n",
		position.MarginUsd, position.Leverage, position.NotionalUsd)
	fmt.Fprintf(&b, "sell ratio %.3f, TP %.1f%%, delta %.3f",
		position.EntrySellRatio, position.TakeProfitPct*100, position.DeltaExitThreshold)

	if replaced != nil {
		kind = model.AlertKindReplacement
		fmt.Fprintf(&b, "\nreplaced %s (latest %.2f%%)", replaced.Symbol, replaced.LatestReturnPct)
	}

	n.send(ctx, kind, b.String(), &position.ID)
}

func (n *TelegramNotifier) NotifyExit(ctx context.Context, position *model.Position, trade *model.Trade) {
	var b strings.Builder
	fmt.Fprintf(&b, "CLOSE %s (%s) @ %s\n", trade.Symbol, trade.ExitReason, formatPrice(trade.ExitPrice))
	fmt.Fprintf(&b, "unlevered %.2f%%, levered %.2f%%\n", trade.UnleveredPct, trade.LeveredPct)
	fmt.Fprintf(&b, "net PnL %.2f USD (gross %.2f, fees %.2f, slip %.2f, funding %.2f)",
		trade.NetPnlUsd, trade.GrossPnlUsd, trade.FeesUsd, trade.SlippageUsd, trade.FundingUsd)
	fmt.Fprintf(&b, "\nheld %s", trade.ExitAt.Sub(trade.EntryAt).Round(time.Minute))

	n.send(ctx, model.AlertKindExit, b.String(), &position.ID)
}

func (n *TelegramNotifier) NotifyScanSkipped(ctx context.Context, trigger, reason string) {
	text := fmt.Sprintf("scan (%s) skipped: %s", trigger, reason)
	n.send(ctx, model.AlertKindScanSkipped, text, nil)
}

func formatPrice(p float64) string {
	if p >= 100 {
		return fmt.Sprintf("%.2f", p)
	}
	return fmt.Sprintf("%.6f", p)
}
