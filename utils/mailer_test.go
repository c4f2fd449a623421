package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensive/blog/config"
)

func TestMailConfigured(t *testing.T) {
	assert.False(t, MailConfigured(config.AppConfig{}))
	assert.False(t, MailConfigured(config.AppConfig{SMTPHost: "smtp.example.com"}))
	assert.True(t, MailConfigured(config.AppConfig{SMTPHost: "smtp.example.com", SMTPFrom: "blog@example.com"}))
}

func TestBuildMessage(t *testing.T) {
	cfg := config.AppConfig{SMTPFrom: "blog@example.com", SMTPFromName: "Блог"}
	msg := string(buildMessage(cfg, "owner@example.com", "Hello", "body text"))

	assert.True(t, strings.HasPrefix(msg, "From: =?UTF-8?b?"))
	assert.Contains(t, msg, "<blog@example.com>\r\n")
	assert.Contains(t, msg, "To: owner@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nbody text"))
}
