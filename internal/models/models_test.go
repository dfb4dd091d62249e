package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestImage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		image   Image
		wantErr bool
	}{
		{
			name:  "plain upload",
			image: Image{Title: "Sunset", ImageURL: "http://x/a.png", UserID: "u1"},
		},
		{
			name: "generated with provenance",
			image: Image{Title: "Cat", ImageURL: "http://x/b.png", UserID: "u1",
				IsAIGenerated: true, AIPrompt: strPtr("a cat"), AIModel: strPtr("pollinations-flux")},
		},
		{
			name: "generated without prompt",
			image: Image{Title: "Cat", ImageURL: "http://x/b.png", UserID: "u1",
				IsAIGenerated: true, AIModel: strPtr("pollinations-flux")},
			wantErr: true,
		},
		{
			name: "upload carrying ai fields",
			image: Image{Title: "Cat", ImageURL: "http://x/b.png", UserID: "u1",
				AIPrompt: strPtr("a cat")},
			wantErr: true,
		},
		{name: "missing title", image: Image{Title: "  ", ImageURL: "http://x", UserID: "u1"}, wantErr: true},
		{name: "missing url", image: Image{Title: "t", UserID: "u1"}, wantErr: true},
		{name: "missing owner", image: Image{Title: "t", ImageURL: "http://x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.image.Validate()
			if tt.wantErr {
				assert.True(t, IsCode(err, CodeValidation), "expected validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" fantasy", "art", "", "fantasy ", "landscape", "  "})
	assert.Equal(t, []string{"art", "fantasy", "landscape"}, got)
	assert.Empty(t, NormalizeTags(nil))
}

func TestUserProfile_DisplayName(t *testing.T) {
	assert.Equal(t, "neo", UserProfile{Username: strPtr("neo"), FullName: strPtr("Thomas"), Email: "n@x"}.DisplayName())
	assert.Equal(t, "Thomas", UserProfile{Username: strPtr(" "), FullName: strPtr("Thomas"), Email: "n@x"}.DisplayName())
	assert.Equal(t, "n@x", UserProfile{Email: "n@x"}.DisplayName())
}

func TestAppError_Sentinels(t *testing.T) {
	assert.True(t, errors.Is(NewForbiddenError("nope"), ErrForbidden))
	assert.True(t, errors.Is(NewConflictError("dup"), ErrConflict))
	assert.False(t, IsCode(errors.New("plain"), CodeNotFound))
	assert.Equal(t, "Internal server error: boom", NewInternalError(errors.New("boom")).Error())
}

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	clock := &monotonicClock{}
	at := time.Date(2026, 5, 1, 12, 0, 0, 1500, time.FixedZone("CEST", 2*3600))

	first := clock.next(at)
	assert.Equal(t, time.UTC, first.Location())
	assert.Equal(t, at.Truncate(time.Microsecond).UTC(), first)

	// Same instant, then an earlier one: each still lands after the last.
	second := clock.next(at)
	third := clock.next(at.Add(-time.Second))
	assert.Equal(t, first.Add(time.Microsecond), second)
	assert.Equal(t, second.Add(time.Microsecond), third)

	later := at.Add(time.Minute)
	assert.Equal(t, later.UTC().Truncate(time.Microsecond), clock.next(later))
}

func TestComment_BeforeCreateKeepsExplicitTime(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Comment{CreatedAt: fixed}
	assert.NoError(t, c.BeforeCreate(nil))
	assert.Equal(t, fixed, c.CreatedAt)
	assert.NotEmpty(t, c.ID)

	a, b := &Comment{}, &Comment{}
	assert.NoError(t, a.BeforeCreate(nil))
	assert.NoError(t, b.BeforeCreate(nil))
	assert.True(t, b.CreatedAt.After(a.CreatedAt))
}
