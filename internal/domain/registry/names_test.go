package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNameParts(t *testing.T) {
	assert.Equal(t, NameParts{Last: "Иванов", First: "Иван", Middle: "Иванович"},
		ParseNameParts("ИВАНОВ ИВАН ИВАНОВИЧ"))
	assert.Equal(t, NameParts{Last: "Петров", First: "Петр"}, ParseNameParts("Петров  Петр"))

	label := ParseNameParts("Роскосмос")
	assert.True(t, label.IsLabel())
	assert.Equal(t, "Роскосмос", label.Last)

	assert.Equal(t, NameParts{}, ParseNameParts("  "))
}

func TestParseNameParts_Initials(t *testing.T) {
	want := NameParts{Last: "Иванов", First: "И.", Middle: "И."}
	for _, in := range []string{"Иванов И.И.", "Иванов И. И.", "ИВАНОВ и.и.", "иванов и. и."} {
		assert.Equal(t, want, ParseNameParts(in), in)
	}
	assert.Equal(t, NameParts{Last: "Петров", First: "П."}, ParseNameParts("Петров п."))
	assert.Equal(t, NameParts{Last: "Сидоров", First: "Олег", Middle: "И."}, ParseNameParts("Сидоров Олег И."))
}

func TestTitleName(t *testing.T) {
	cases := map[string]string{
		"ИВАНОВ-ПЕТРОВ": "Иванов-Петров",
		"иванов":        "Иванов",
		"И.И.":          "И.И.",
		"и.и.":          "И.И.",
		"а.-б.":         "А.-Б.",
		" ":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, TitleName(in), in)
	}
}

func TestNameParts_Full(t *testing.T) {
	assert.Equal(t, "Иванов Иван Иванович", NameParts{Last: "Иванов", First: "Иван", Middle: "Иванович"}.Full())
	assert.Equal(t, "Петров Петр", NameParts{Last: "Петров", First: "Петр"}.Full())
}

func TestCleanFragment(t *testing.T) {
	cases := map[string]string{
		"Иванов Иван Иванович (RU)":  "Иванов Иван Иванович",
		"Иванов Иван Иванович (RU),": "Иванов Иван Иванович",
		`ООО "Ромашка" (RU)`:         `ООО "Ромашка"`,
		`"Ромашка"`:                  "Ромашка",
		`ООО ""Ромашка""`:            `ООО "Ромашка"`,
		`Лютик"`:                     "Лютик",
		"  None ":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanFragment(in), in)
	}
}

func TestSplitEntities(t *testing.T) {
	assert.Equal(t,
		[]string{"Иванов Иван", "Петров Петр"},
		SplitEntities("Иванов Иван (RU)\nПетров Петр (RU)", SplitNewline))

	assert.Equal(t,
		[]string{"Иванов Иван", "Петров Петр"},
		SplitEntities("Иванов Иван (RU),\r\nПетров Петр (RU)", SplitCommaNewline))

	assert.Equal(t,
		[]string{`ООО "Ромашка, Лютик и партнеры"`},
		SplitEntities(`ООО "Ромашка, Лютик и партнеры" (RU)`, SplitCommaNewline))

	assert.Nil(t, SplitEntities("", SplitNewline))
	assert.Empty(t, SplitEntities("\n\n", SplitNewline))
}

func TestNormalizeOrgName(t *testing.T) {
	assert.Equal(t, "ромашка", NormalizeOrgName(`ООО "Ромашка"`))
	assert.Equal(t, "ромашка", NormalizeOrgName(`Общество с ограниченной ответственностью «Ромашка»`))
	assert.Equal(t, "ромашка", NormalizeOrgName("Ромашка"))
	assert.Equal(t, "acme robotics", NormalizeOrgName("ACME Robotics, LLC"))
	assert.Equal(t, "", NormalizeOrgName("ООО"))
}

func TestOrgKeywords(t *testing.T) {
	assert.Equal(t,
		[]string{"ромашка", "инн", "7701234567"},
		OrgKeywords(`ООО "Ромашка" ИНН 7701234567`))

	// quoted substrings of three characters or fewer are ignored
	assert.Empty(t, OrgKeywords(`ООО "Лес"`))
	assert.Empty(t, OrgKeywords("Ромашка"))
}

func TestOrgSignificantWords(t *testing.T) {
	assert.Equal(t, []string{"научный", "центр", "ромашка"}, OrgSignificantWords("научный центр ромашка"))
	assert.Nil(t, OrgSignificantWords("лес и сад"))
}

func TestRunePrefix(t *testing.T) {
	assert.Equal(t, "рома", RunePrefix("ромашка", 4))
	assert.Equal(t, "лес", RunePrefix("лес", 30))
}

func TestBaseSlug(t *testing.T) {
	assert.Equal(t, "ivanov-ivan-ivanovich", BaseSlug("Иванов Иван Иванович", "person"))
	assert.Equal(t, "device-a", BaseSlug("Device A", "object"))
	assert.Equal(t, "org", BaseSlug("!!!", "org"))
	assert.LessOrEqual(t, len(BaseSlug(strings.Repeat("abcdef ", 60), "x")), maxSlugLength)
}
