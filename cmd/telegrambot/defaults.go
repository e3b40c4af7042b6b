package main

import (
	"time"

	"github.com/procrastinando/telegrambot-anythingllm/internal/passwordutil"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("telegram.api_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 10*time.Second)
	viper.SetDefault("telegram.retry_delay", 5*time.Second)

	viper.SetDefault("password_length", passwordutil.DefaultLength)
	viper.SetDefault("welcome_message", "")
}
