package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/procrastinando/telegrambot-anythingllm/internal/anythingllm"
	"github.com/procrastinando/telegrambot-anythingllm/internal/telegram"
)

type fakeDirectory struct {
	lookupID    anythingllm.UserID
	lookupFound bool
	lookupCalls []string

	createID       anythingllm.UserID
	createPassword string
	createOK       bool
	createCalls    []string
	createBios     []string

	addOK    bool
	addCalls []anythingllm.UserID

	resetResult string
	resetOK     bool
	resetCalls  []anythingllm.UserID
}

func (d *fakeDirectory) LookupUser(ctx context.Context, username string) (anythingllm.UserID, bool) {
	d.lookupCalls = append(d.lookupCalls, username)
	return d.lookupID, d.lookupFound
}

func (d *fakeDirectory) CreateUser(ctx context.Context, username, bio string) (anythingllm.UserID, string, bool) {
	d.createCalls = append(d.createCalls, username)
	d.createBios = append(d.createBios, bio)
	return d.createID, d.createPassword, d.createOK
}

func (d *fakeDirectory) AddToWorkspace(ctx context.Context, id anythingllm.UserID, slug string) bool {
	d.addCalls = append(d.addCalls, id)
	return d.addOK
}

func (d *fakeDirectory) ResetPassword(ctx context.Context, id anythingllm.UserID) (string, bool) {
	d.resetCalls = append(d.resetCalls, id)
	return d.resetResult, d.resetOK
}

type sentMessage struct {
	ChatID int64
	Text   string
	Mode   telegram.ParseMode
}

type fakeMessenger struct {
	sent []sentMessage
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, mode telegram.ParseMode) error {
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Mode: mode})
	return nil
}

func newTestHandler(t *testing.T, dir Directory, msgr Messenger, welcome string) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		Directory:      dir,
		Messenger:      msgr,
		WorkspaceSlug:  "pgcert-2025",
		ExternalURL:    "https://llm.example.edu",
		WelcomeMessage: welcome,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func startUpdate(chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			Chat: &telegram.Chat{ID: chatID, Type: "private"},
			From: &telegram.User{FirstName: "Ana", LanguageCode: "es"},
			Text: text,
		},
	}
}

func TestStartNewUserProvisionsAccount(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		lookupFound:    false,
		createID:       "77",
		createPassword: "Xy9Qm2Lp0A",
		createOK:       true,
		addOK:          true,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "Welcome to the course workspace.")

	h.HandleUpdate(context.Background(), startUpdate(42, "/start"))

	if len(dir.lookupCalls) != 1 || dir.lookupCalls[0] != "42" {
		t.Fatalf("lookup calls: %#v", dir.lookupCalls)
	}
	if len(dir.createCalls) != 1 || dir.createCalls[0] != "42" {
		t.Fatalf("create must be called exactly once with the username: %#v", dir.createCalls)
	}
	if !strings.Contains(dir.createBios[0], "Ana") || !strings.Contains(dir.createBios[0], "es") {
		t.Fatalf("bio should carry name and language: %q", dir.createBios[0])
	}
	if len(dir.addCalls) != 1 || dir.addCalls[0] != "77" {
		t.Fatalf("addToWorkspace must be called once with the new id: %#v", dir.addCalls)
	}
	if id, ok := h.Cache().Get(42); !ok || id != "77" {
		t.Fatalf("cache must hold 42 -> 77, got %q, %v", id, ok)
	}

	if len(msgr.sent) != 3 {
		t.Fatalf("expected 3 outbound messages, got %d: %#v", len(msgr.sent), msgr.sent)
	}
	if !strings.Contains(msgr.sent[0].Text, "Creating your AnythingLLM account") {
		t.Fatalf("first message should be the creating notice: %q", msgr.sent[0].Text)
	}
	if msgr.sent[1].Text != "Welcome to the course workspace." {
		t.Fatalf("second message should be the welcome text: %q", msgr.sent[1].Text)
	}
	last := msgr.sent[2]
	if last.Mode != telegram.ParseModeMarkdownV2 {
		t.Fatalf("credential reply must use MarkdownV2, got %q", last.Mode)
	}
	if !strings.Contains(last.Text, "Username: 42") {
		t.Fatalf("credential reply must contain %q: %q", "Username: 42", last.Text)
	}
	if !strings.Contains(last.Text, "`Xy9Qm2Lp0A`") {
		t.Fatalf("credential reply must contain the backticked password: %q", last.Text)
	}
	if strings.Contains(last.Text, "Warning:") {
		t.Fatalf("no warning expected when workspace add succeeds: %q", last.Text)
	}
}

func TestStartNewUserWarnsWhenWorkspaceAddFails(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		createID:       "77",
		createPassword: "Xy9Qm2Lp0A",
		createOK:       true,
		addOK:          false,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	h.HandleUpdate(context.Background(), startUpdate(42, "/start"))

	last := msgr.sent[len(msgr.sent)-1]
	if !strings.Contains(last.Text, "Warning:") {
		t.Fatalf("credential reply must warn about workspace failure: %q", last.Text)
	}
}

func TestStartNewUserCreateFailure(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{createOK: false}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	h.HandleUpdate(context.Background(), startUpdate(42, "/start"))

	if len(dir.addCalls) != 0 {
		t.Fatalf("no workspace call after failed create: %#v", dir.addCalls)
	}
	if _, ok := h.Cache().Get(42); ok {
		t.Fatalf("failed create must not populate the cache")
	}
	last := msgr.sent[len(msgr.sent)-1]
	if !strings.Contains(last.Text, "error creating") {
		t.Fatalf("expected generic creation-error reply: %q", last.Text)
	}
}

func TestStartReturningUser(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		lookupID:    "acct9",
		lookupFound: true,
		addOK:       true,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	h.HandleUpdate(context.Background(), startUpdate(42, "/start"))

	if len(dir.createCalls) != 0 {
		t.Fatalf("returning user must not trigger create: %#v", dir.createCalls)
	}
	if len(dir.addCalls) != 1 || dir.addCalls[0] != "acct9" {
		t.Fatalf("addToWorkspace must be called once with acct9: %#v", dir.addCalls)
	}
	if id, ok := h.Cache().Get(42); !ok || id != "acct9" {
		t.Fatalf("cache must be refreshed from lookup, got %q, %v", id, ok)
	}

	if len(msgr.sent) != 1 {
		t.Fatalf("expected exactly 1 outbound message, got %d", len(msgr.sent))
	}
	reply := msgr.sent[0]
	if !strings.Contains(reply.Text, "42") {
		t.Fatalf("reply must show the username 42: %q", reply.Text)
	}
	if strings.Contains(reply.Text, "acct9") {
		t.Fatalf("reply must never leak the raw account id: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "/reset\\_password") {
		t.Fatalf("reply must point at /reset_password (escaped): %q", reply.Text)
	}
}

func TestResetPasswordWithoutAccount(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{lookupFound: false}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")
	// Stale entry from a deleted remote account; the refresh must
	// evict it.
	h.Cache().Set(42, "ghost")

	h.HandleUpdate(context.Background(), startUpdate(42, "/reset_password"))

	if len(dir.resetCalls) != 0 {
		t.Fatalf("resetPassword must not be called: %#v", dir.resetCalls)
	}
	if _, ok := h.Cache().Get(42); ok {
		t.Fatalf("stale cache entry must be evicted")
	}
	if len(msgr.sent) != 1 {
		t.Fatalf("expected exactly 1 outbound message, got %d", len(msgr.sent))
	}
	if !strings.Contains(msgr.sent[0].Text, "/start") {
		t.Fatalf("reply should direct the user to /start: %q", msgr.sent[0].Text)
	}
}

func TestResetPasswordSuccess(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		lookupID:    "acct9",
		lookupFound: true,
		resetResult: "NewPwd12345",
		resetOK:     true,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	h.HandleUpdate(context.Background(), startUpdate(42, "/reset_password"))

	if len(dir.resetCalls) != 1 || dir.resetCalls[0] != "acct9" {
		t.Fatalf("reset calls: %#v", dir.resetCalls)
	}
	if len(msgr.sent) != 2 {
		t.Fatalf("expected resetting notice + result, got %d", len(msgr.sent))
	}
	final := msgr.sent[1]
	if final.Mode != telegram.ParseModeMarkdownV2 {
		t.Fatalf("reset reply must use MarkdownV2")
	}
	if !strings.Contains(final.Text, "`NewPwd12345`") {
		t.Fatalf("reset reply must contain the backticked password: %q", final.Text)
	}
}

func TestResetPasswordFailure(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		lookupID:    "acct9",
		lookupFound: true,
		resetOK:     false,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	h.HandleUpdate(context.Background(), startUpdate(42, "/reset_password"))

	final := msgr.sent[len(msgr.sent)-1]
	if !strings.Contains(final.Text, "error resetting") {
		t.Fatalf("expected generic reset-error reply: %q", final.Text)
	}
	if strings.Contains(final.Text, "acct9") {
		t.Fatalf("no internal detail in user-facing replies: %q", final.Text)
	}
}

func TestMyIDNeverTouchesCacheOrDirectory(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")
	h.Cache().Set(42, "acct9")

	for i := 0; i < 3; i++ {
		h.HandleUpdate(context.Background(), startUpdate(42, "/my_id"))
	}

	if len(dir.lookupCalls)+len(dir.createCalls)+len(dir.addCalls)+len(dir.resetCalls) != 0 {
		t.Fatalf("/my_id must not call the admin API: %#v", dir)
	}
	if id, ok := h.Cache().Get(42); !ok || id != "acct9" {
		t.Fatalf("/my_id must not mutate the cache, got %q, %v", id, ok)
	}
	if len(msgr.sent) != 3 {
		t.Fatalf("expected one reply per /my_id, got %d", len(msgr.sent))
	}
	for _, m := range msgr.sent {
		if m.Mode != telegram.ParseModeMarkdownV2 {
			t.Fatalf("/my_id reply must be MarkdownV2")
		}
		if !strings.Contains(m.Text, "42") {
			t.Fatalf("/my_id reply must contain the chat id: %q", m.Text)
		}
	}
}

func TestNonCommandsAreSilent(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "hi")

	for _, text := range []string{"hello there", "/unknown_command", ""} {
		h.HandleUpdate(context.Background(), startUpdate(42, text))
	}
	h.HandleUpdate(context.Background(), telegram.Update{UpdateID: 9}) // no message at all

	if len(msgr.sent) != 0 {
		t.Fatalf("non-commands must produce no reply: %#v", msgr.sent)
	}
	if len(dir.lookupCalls) != 0 {
		t.Fatalf("non-commands must not hit the admin API: %#v", dir.lookupCalls)
	}
}

func TestWelcomeMessageSkippedWhenUnset(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{
		createID:       "77",
		createPassword: "Xy9Qm2Lp0A",
		createOK:       true,
		addOK:          true,
	}
	msgr := &fakeMessenger{}
	h := newTestHandler(t, dir, msgr, "")

	h.HandleUpdate(context.Background(), startUpdate(42, "/start"))

	if len(msgr.sent) != 2 {
		t.Fatalf("without a welcome message only notice + credentials are sent, got %d", len(msgr.sent))
	}
}
