package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storypipeline/internal/models"
)

func TestStatusTransitionAllowed(t *testing.T) {
	tests := []struct {
		name    string
		from    models.StoryStatus
		to      models.StoryStatus
		allowed bool
	}{
		{"pending to processing", models.StoryStatusPending, models.StoryStatusProcessing, true},
		{"pending to failed", models.StoryStatusPending, models.StoryStatusFailed, true},
		{"pending to completed direct", models.StoryStatusPending, models.StoryStatusCompleted, false},
		{"pending self loop", models.StoryStatusPending, models.StoryStatusPending, false},
		{"processing self loop", models.StoryStatusProcessing, models.StoryStatusProcessing, true},
		{"processing to completed", models.StoryStatusProcessing, models.StoryStatusCompleted, true},
		{"processing to failed", models.StoryStatusProcessing, models.StoryStatusFailed, true},
		{"processing to pending", models.StoryStatusProcessing, models.StoryStatusPending, false},
		{"completed is terminal", models.StoryStatusCompleted, models.StoryStatusProcessing, false},
		{"failed is terminal", models.StoryStatusFailed, models.StoryStatusProcessing, false},
		{"unknown from status", models.StoryStatus("BOGUS"), models.StoryStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, models.StatusTransitionAllowed(tt.from, tt.to))
		})
	}
}

func TestStoryStatus_IsTerminal(t *testing.T) {
	assert.False(t, models.StoryStatusPending.IsTerminal())
	assert.False(t, models.StoryStatusProcessing.IsTerminal())
	assert.True(t, models.StoryStatusCompleted.IsTerminal())
	assert.True(t, models.StoryStatusFailed.IsTerminal())
}

func TestScene_HasMedia(t *testing.T) {
	tests := []struct {
		name     string
		scene    models.Scene
		expected bool
	}{
		{"both urls present", models.Scene{ImageURL: "https://x/img.png", AudioURL: "https://x/aud.mp3"}, true},
		{"missing audio", models.Scene{ImageURL: "https://x/img.png"}, false},
		{"missing image", models.Scene{AudioURL: "https://x/aud.mp3"}, false},
		{"neither present", models.Scene{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.scene.HasMedia())
		})
	}
}
