package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Coca Cola 1.5L", want: "coca-cola-1-5l"},
		{in: "  Fanta   Orange!! ", want: "fanta-orange"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}

	t.Run("cyrillic is transliterated", func(t *testing.T) {
		got := Slugify("Сүү Шар")
		assert.NotEmpty(t, got)
		assert.Regexp(t, `^[a-z0-9-]+$`, got)
	})
}

func TestPatch_Apply(t *testing.T) {
	newID := func() string { return "attr-new" }

	t.Run("name regenerates slug", func(t *testing.T) {
		p := Product{Name: "Old Name", Slug: "old-name"}
		changed := Patch{Name: ptr("New Name")}.Apply(&p, newID)
		assert.True(t, changed)
		assert.Equal(t, "New Name", p.Name)
		assert.Equal(t, "new-name", p.Slug)
	})

	t.Run("absent fields untouched", func(t *testing.T) {
		p := Product{Name: "Keep", BarCode: "123", InCase: 6}
		changed := Patch{InCase: ptr(12)}.Apply(&p, newID)
		assert.True(t, changed)
		assert.Equal(t, "Keep", p.Name)
		assert.Equal(t, "123", p.BarCode)
		assert.Equal(t, 12, p.InCase)
	})

	t.Run("size replaced in place", func(t *testing.T) {
		p := Product{Attributes: []Attribute{
			{ID: "a1", Key: "color", Value: "red"},
			{ID: "a2", Key: SizeAttributeKey, Name: SizeAttributeName, Value: 0.5},
		}}
		Patch{Size: 1.5}.Apply(&p, newID)
		require.Len(t, p.Attributes, 2)
		assert.Equal(t, "a2", p.Attributes[1].ID)
		assert.Equal(t, 1.5, p.Attributes[1].Value)
	})

	t.Run("size appended when missing", func(t *testing.T) {
		p := Product{Attributes: []Attribute{{ID: "a1", Key: "color", Value: "red"}}}
		Patch{Size: 2.0}.Apply(&p, newID)
		require.Len(t, p.Attributes, 2)
		assert.Equal(t, "attr-new", p.Attributes[1].ID)
		assert.Equal(t, SizeAttributeKey, p.Attributes[1].Key)
		assert.Equal(t, "hemzhee", p.Attributes[1].Slug)
	})

	t.Run("same values report no change", func(t *testing.T) {
		p := Product{Name: "Same", InCase: 3}
		assert.False(t, Patch{Name: ptr("Same"), InCase: ptr(3)}.Apply(&p, newID))
	})

	assert.True(t, Patch{}.Empty())
}
