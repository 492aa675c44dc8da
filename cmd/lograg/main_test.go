package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/0xcro3dile/lograg-go/internal/infrastructure/config"
)

func TestAnswerTimeout(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 30*time.Second+300*time.Second+30*time.Second, answerTimeout(cfg))

	disabled := 0
	cfg.Chat.TimeoutSecs = &disabled
	assert.Zero(t, answerTimeout(cfg))
}
