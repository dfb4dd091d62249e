package gallery

import (
	"testing"

	"gallery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for raw, want := range map[string]Kind{"": KindAll, "ALL": KindAll, " ai ": KindAI, "Uploads": KindUploads} {
		got, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseKind("video")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestFilter_Apply(t *testing.T) {
	desc := "Long exposure over the Harbour"
	images := []*models.Image{
		{ID: "1", Title: "Sunset", Tags: []string{"sky"}},
		{ID: "2", Title: "Robot", Tags: []string{"Neon"}, IsAIGenerated: true},
		{ID: "3", Title: "Night", Description: &desc},
		{ID: "4", Title: "Neon sunset", IsAIGenerated: true},
	}
	ids := func(list []*models.Image) []string {
		out := make([]string, 0, len(list))
		for _, img := range list {
			out = append(out, img.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero value keeps all", Filter{}, []string{"1", "2", "3", "4"}},
		{"title, case-insensitive", Filter{Query: "SUNSET"}, []string{"1", "4"}},
		{"tag", Filter{Query: "neon"}, []string{"2", "4"}},
		{"description", Filter{Query: "harbour"}, []string{"3"}},
		{"ai only", Filter{Kind: KindAI}, []string{"2", "4"}},
		{"uploads only", Filter{Kind: KindUploads}, []string{"1", "3"}},
		{"query and kind", Filter{Query: "sunset", Kind: KindUploads}, []string{"1"}},
		{"no match", Filter{Query: "mountain"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.filter.Apply(images)))
		})
	}
	assert.Len(t, images, 4, "the input slice is left alone")
}
