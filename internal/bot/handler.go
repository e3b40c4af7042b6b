package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/procrastinando/telegrambot-anythingllm/internal/anythingllm"
	"github.com/procrastinando/telegrambot-anythingllm/internal/telegram"
	"github.com/procrastinando/telegrambot-anythingllm/internal/telegramutil"
)

// Directory is the slice of the AnythingLLM admin API the handler
// needs. All operations report failure through their return values;
// none of them errors out.
type Directory interface {
	LookupUser(ctx context.Context, username string) (anythingllm.UserID, bool)
	CreateUser(ctx context.Context, username, bio string) (anythingllm.UserID, string, bool)
	AddToWorkspace(ctx context.Context, id anythingllm.UserID, slug string) bool
	ResetPassword(ctx context.Context, id anythingllm.UserID) (string, bool)
}

// Messenger sends one message to one chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, mode telegram.ParseMode) error
}

type HandlerOptions struct {
	Directory Directory
	Messenger Messenger
	Cache     *IdentityCache
	// WorkspaceSlug is the workspace every provisioned account joins.
	WorkspaceSlug string
	// ExternalURL is shown to users as the login address; it may
	// differ from the API base URL the bot talks to.
	ExternalURL string
	// WelcomeMessage, when non-empty, is sent verbatim to every user
	// whose account is being created.
	WelcomeMessage string
	Logger         *slog.Logger
}

// Handler turns one Telegram update into admin-API calls and replies.
// The Telegram chat id doubles as the AnythingLLM username, which is
// the only durable link between the two systems.
type Handler struct {
	dir     Directory
	msgr    Messenger
	cache   *IdentityCache
	slug    string
	extURL  string
	welcome string
	logger  *slog.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Directory == nil {
		return nil, fmt.Errorf("directory client is required")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if strings.TrimSpace(opts.WorkspaceSlug) == "" {
		return nil, fmt.Errorf("workspace slug is required")
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewIdentityCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dir:     opts.Directory,
		msgr:    opts.Messenger,
		cache:   cache,
		slug:    strings.TrimSpace(opts.WorkspaceSlug),
		extURL:  strings.TrimSpace(opts.ExternalURL),
		welcome: strings.TrimSpace(opts.WelcomeMessage),
		logger:  logger,
	}, nil
}

// Cache exposes the identity cache, mainly for tests.
func (h *Handler) Cache() *IdentityCache {
	return h.cache
}

func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	username := strconv.FormatInt(chatID, 10)

	firstName := "User"
	languageCode := "en"
	if msg.From != nil {
		if s := strings.TrimSpace(msg.From.FirstName); s != "" {
			firstName = s
		}
		if s := strings.TrimSpace(msg.From.LanguageCode); s != "" {
			languageCode = s
		}
	}

	text := strings.TrimSpace(msg.Text)
	cmd := parseCommand(text)

	h.logger.Info("telegram_message",
		"chat_id", chatID,
		"first_name", firstName,
		"language_code", languageCode,
		"text", text,
	)

	// /start and /reset_password treat the admin API as the source of
	// truth and refresh the cache either way; everything else trusts
	// whatever the cache holds.
	var accountID anythingllm.UserID
	var resolved bool
	switch cmd {
	case cmdStart, cmdResetPassword:
		accountID, resolved = h.dir.LookupUser(ctx, username)
		if resolved {
			h.cache.Set(chatID, accountID)
		} else {
			h.cache.Remove(chatID)
		}
	default:
		accountID, resolved = h.cache.Get(chatID)
	}

	switch cmd {
	case cmdStart:
		if resolved {
			h.startExisting(ctx, chatID, username, accountID)
		} else {
			h.startNew(ctx, chatID, username, firstName, languageCode)
		}
	case cmdResetPassword:
		if !resolved {
			h.send(ctx, chatID, "It seems you don't have an AnythingLLM account yet. Use /start to create one.", telegram.ParseModeNone)
			return
		}
		h.resetPassword(ctx, chatID, accountID)
	case cmdMyID:
		reply := telegramutil.EscapeMarkdownV2(fmt.Sprintf("Your Telegram ID (and AnythingLLM username) is: %s", username))
		h.send(ctx, chatID, reply, telegram.ParseModeMarkdownV2)
	}
	// cmdNone and cmdUnknown: silent on purpose.
}

func (h *Handler) startExisting(ctx context.Context, chatID int64, username string, accountID anythingllm.UserID) {
	// Membership is re-ensured on every /start; a failure here is
	// worth a log line but not a degraded reply.
	if !h.dir.AddToWorkspace(ctx, accountID, h.slug) {
		h.logger.Warn("workspace_membership_not_confirmed", "chat_id", chatID, "user_id", string(accountID))
	}

	esc := telegramutil.EscapeMarkdownV2
	parts := []string{
		esc("It looks like you already have an AnythingLLM account!"),
		"\n",
		esc(fmt.Sprintf("Your username is: %s", username)),
		"\n",
		esc(fmt.Sprintf("You can log in and access the '%s' workspace at: ", h.slug)) + esc(h.extURL),
		"\n",
		esc("If you forgot your password, use /reset_password."),
	}
	h.send(ctx, chatID, strings.Join(parts, ""), telegram.ParseModeMarkdownV2)
}

func (h *Handler) startNew(ctx context.Context, chatID int64, username, firstName, languageCode string) {
	h.send(ctx, chatID, "Welcome! Creating your AnythingLLM account...", telegram.ParseModeNone)
	if h.welcome != "" {
		h.send(ctx, chatID, h.welcome, telegram.ParseModeNone)
	}

	bio := fmt.Sprintf("%s (speaks %s) signed up through the Telegram bot.", firstName, languageCode)
	accountID, password, ok := h.dir.CreateUser(ctx, username, bio)
	if !ok {
		h.send(ctx, chatID, "Sorry, there was an error creating your AnythingLLM account. Please try again later or contact an admin.", telegram.ParseModeNone)
		return
	}
	h.cache.Set(chatID, accountID)

	added := h.dir.AddToWorkspace(ctx, accountID, h.slug)

	esc := telegramutil.EscapeMarkdownV2
	parts := []string{
		esc("Your AnythingLLM account has been created!"),
		"\n\n",
		esc(fmt.Sprintf("Username: %s", username)),
		"\n",
		// Generated passwords are alphanumeric, but escape anyway:
		// the backticked span must never trust its contents.
		"Password: `" + esc(password) + "`",
		"\n\n",
		esc(fmt.Sprintf("You can log in and access the '%s' workspace at: ", h.slug)) + esc(h.extURL),
	}
	if !added {
		parts = append(parts, esc("\n\nWarning: There was an issue adding you to the workspace. Please contact an admin."))
	}
	h.send(ctx, chatID, strings.Join(parts, ""), telegram.ParseModeMarkdownV2)
}

func (h *Handler) resetPassword(ctx context.Context, chatID int64, accountID anythingllm.UserID) {
	h.send(ctx, chatID, "Resetting your AnythingLLM password...", telegram.ParseModeNone)

	password, ok := h.dir.ResetPassword(ctx, accountID)
	if !ok {
		h.send(ctx, chatID, "Sorry, there was an error resetting your password. Please try again later or contact an admin.", telegram.ParseModeNone)
		return
	}

	esc := telegramutil.EscapeMarkdownV2
	parts := []string{
		esc("Your AnythingLLM password has been reset."),
		"\n",
		esc("New Password: "),
		"`" + esc(password) + "`",
	}
	h.send(ctx, chatID, strings.Join(parts, ""), telegram.ParseModeMarkdownV2)
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, mode telegram.ParseMode) {
	if err := h.msgr.SendMessage(ctx, chatID, text, mode); err != nil {
		h.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}
