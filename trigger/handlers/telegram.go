package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/vault"
)

// CategoryTelegram is the trigger category served by TelegramHandler.
const CategoryTelegram = "telegram"

// telegramAPIRate bounds calls to the Telegram Bot API across all workflows
// sharing this process.
const telegramAPIRate = rate.Limit(20)

type (
	// TelegramHandlerOptions configures a TelegramHandler.
	TelegramHandlerOptions struct {
		// Vault decrypts the node's sealed bot token. Required.
		Vault *vault.Vault
		// PublicURL is the externally reachable base URL webhook routes hang
		// off. Required.
		PublicURL string
		// Logger receives handler logs. Defaults to a no-op logger.
		Logger telemetry.Logger
		// NewBot overrides Bot API client construction, for tests.
		NewBot func(token string) (BotAPI, error)
	}

	// BotAPI is the slice of the Telegram client the handler uses.
	BotAPI interface {
		Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	}

	// TelegramHandler installs telegram trigger nodes as Bot API webhooks
	// pointing at this deployment's public webhook route. Teardown deletes
	// the webhook and drops pending updates so a reactivated workflow does
	// not replay stale messages.
	TelegramHandler struct {
		vault     *vault.Vault
		publicURL string
		limiter   *rate.Limiter
		log       telemetry.Logger
		newBot    func(token string) (BotAPI, error)
	}
)

var _ Handler = (*TelegramHandler)(nil)

// NewTelegramHandler constructs a telegram trigger handler. Vault and
// PublicURL are required.
func NewTelegramHandler(opts TelegramHandlerOptions) (*TelegramHandler, error) {
	if opts.Vault == nil {
		return nil, fmt.Errorf("credential vault is required")
	}
	if opts.PublicURL == "" {
		return nil, fmt.Errorf("public URL is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	newBot := opts.NewBot
	if newBot == nil {
		newBot = func(token string) (BotAPI, error) { return tgbotapi.NewBotAPI(token) }
	}
	return &TelegramHandler{
		vault:     opts.Vault,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		limiter:   rate.NewLimiter(telegramAPIRate, 1),
		log:       logger,
		newBot:    newBot,
	}, nil
}

// Handle sets the bot's webhook to this node's callback route. Telegram
// keeps a single webhook per bot, so replayed installs are naturally
// idempotent.
func (h *TelegramHandler) Handle(ctx context.Context, node events.NodeRef, workflowID int64) error {
	bot, err := h.bot(node, workflowID)
	if err != nil {
		return err
	}
	hook, err := tgbotapi.NewWebhook(fmt.Sprintf("%s/telegram/webhook/%d/%d", h.publicURL, workflowID, node.NodeID))
	if err != nil {
		return fmt.Errorf("build webhook for workflow %d node %d: %w", workflowID, node.NodeID, err)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := bot.Request(hook); err != nil {
		return fmt.Errorf("set telegram webhook for workflow %d: %w", workflowID, err)
	}
	h.log.Info(ctx, "telegram webhook installed", "workflow_id", workflowID, "node", node.NodeID)
	return nil
}

// Cleanup deletes the bot's webhook and drops its pending updates.
func (h *TelegramHandler) Cleanup(ctx context.Context, node events.NodeRef, workflowID int64) error {
	bot, err := h.bot(node, workflowID)
	if err != nil {
		return err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("delete telegram webhook for workflow %d: %w", workflowID, err)
	}
	h.log.Info(ctx, "telegram webhook removed", "workflow_id", workflowID, "node", node.NodeID)
	return nil
}

func (h *TelegramHandler) bot(node events.NodeRef, workflowID int64) (BotAPI, error) {
	sealed, ok := node.CustomConfig["bot_token"].(string)
	if !ok || sealed == "" {
		return nil, fmt.Errorf("telegram node %d of workflow %d has no bot_token", node.NodeID, workflowID)
	}
	token, err := h.vault.OpenField(sealed, "bot_token")
	if err != nil {
		return nil, fmt.Errorf("open bot token for workflow %d: %w", workflowID, err)
	}
	bot, err := h.newBot(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram client for workflow %d: %w", workflowID, err)
	}
	return bot, nil
}
