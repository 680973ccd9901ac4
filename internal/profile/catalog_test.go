package profile

import (
	"strings"
	"testing"

	"github.com/example/wordgo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{"sofia", "mark", "yuki"}, c.Keys())

	sofia, ok := c.Lookup("sofia")
	require.True(t, ok)
	assert.Equal(t, "ru", sofia.NativeLanguage)
	require.Len(t, sofia.Languages, 2)
	assert.Equal(t, "b1", sofia.Languages[0].Level)

	mark, ok := c.Lookup("mark")
	require.True(t, ok)
	assert.Equal(t, []string{"en"}, mark.InterfaceLanguages)

	_, ok = c.Lookup("nobody")
	assert.False(t, ok)
}

func TestLoadCatalogRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"bad level": `
profiles:
  - key: a
    display_name: A
    native_language: en
    languages:
      - code: de
        level: z9
`,
		"duplicate key": `
profiles:
  - {key: a, display_name: A, native_language: en}
  - {key: a, display_name: B, native_language: en}
`,
		"missing name": `
profiles:
  - {key: a, native_language: en}
`,
		"unknown field": `
profiles:
  - {key: a, display_name: A, native_language: en, colour: red}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogDefaultsInterfaceLanguages(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(`
profiles:
  - key: a
    display_name: A
    native_language: pt
    languages:
      - code: EN
        level: B2
`))
	require.NoError(t, err)
	a, ok := c.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []string{"pt"}, a.InterfaceLanguages)
	assert.Equal(t, "en", a.Languages[0].Code)
	assert.Equal(t, "b2", a.Languages[0].Level)
}

func TestSynthesize(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	cfg, _ := c.Lookup("yuki")

	p := Synthesize(cfg)
	assert.False(t, p.Persisted())
	assert.Equal(t, models.ProfileTypeClassic, p.Type())
	assert.Zero(t, p.Record().ID)
	require.Len(t, p.Record().LearningLanguages, 2)
	assert.Equal(t, 20, p.Record().LearningLanguages[0].DailyWords)
	assert.Equal(t, models.DefaultDailyWords, p.Record().LearningLanguages[1].DailyWords)
	assert.Nil(t, p.Record().LearningLanguages[1].Specialty)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Anna":                  "anna",
		"José Müller":           "jose-muller",
		"  Hi!! there  ":        "hi-there",
		"София":                 "profile",
		"":                      "profile",
		"Crème Brûlée 2":        "creme-brulee-2",
		strings.Repeat("a", 40): strings.Repeat("a", 32),
	}
	for in, want := range tests {
		assert.Equal(t, want, slugify(in), in)
	}

	key := newProfileKey("Anna")
	assert.Regexp(t, `^anna-[0-9a-f]{8}$`, key)
	assert.NotEqual(t, key, newProfileKey("Anna"))
}
