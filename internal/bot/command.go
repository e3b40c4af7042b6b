package bot

import "strings"

type command int

const (
	// cmdNone covers plain text and empty messages; the bot stays
	// silent for these and for cmdUnknown.
	cmdNone command = iota
	cmdUnknown
	cmdStart
	cmdResetPassword
	cmdMyID
)

// parseCommand resolves the message text to a command variant once,
// so the handler can match exhaustively instead of comparing strings.
// "/cmd@BotName" variants and trailing arguments are tolerated.
func parseCommand(text string) command {
	text = strings.TrimSpace(text)
	if text == "" || !strings.HasPrefix(text, "/") {
		return cmdNone
	}
	word := text
	if i := strings.IndexAny(word, " \n\t"); i >= 0 {
		word = word[:i]
	}
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	switch strings.ToLower(word) {
	case "/start":
		return cmdStart
	case "/reset_password":
		return cmdResetPassword
	case "/my_id":
		return cmdMyID
	}
	return cmdUnknown
}
