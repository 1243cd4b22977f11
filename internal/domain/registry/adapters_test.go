package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" IC-Topology ")
	require.NoError(t, err)
	assert.Equal(t, CategoryICTopology, c)

	_, err = ParseCategory("trademark")
	assert.Error(t, err)
}

func TestAdapterFor_AllCategories(t *testing.T) {
	for _, c := range Categories {
		a, ok := AdapterFor(c)
		require.True(t, ok, c)
		assert.Equal(t, c, a.Category)
		assert.Contains(t, a.RequiredColumns(), ColRegistrationNumber)
		assert.Contains(t, a.Tracked, FieldObjectName)
	}
}

func TestTable_MissingColumns(t *testing.T) {
	tbl := &Table{Columns: []string{"registration number", "authors"}}
	a, _ := AdapterFor(CategoryInvention)
	assert.Equal(t, []string{"invention name"}, tbl.MissingColumns(a.RequiredColumns()))
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "registration number", NormalizeHeader("\uFEFFRegistration_Number "))
	assert.Equal(t, "publication url", NormalizeHeader("  Publication   URL"))
}

func TestAdapter_BuildInvention(t *testing.T) {
	a, _ := AdapterFor(CategoryInvention)
	row := Row{
		"registration number": "2701234",
		"invention name":      "Способ получения",
		"application date":    "20190305",
		"registration date":   "15.01.2020",
		"actual":              "да",
		"publication url":     "https://example.org/2701234",
		"abstract":            "Реферат",
		"claims":              "None",
		"authors":             "Иванов Иван Иванович (RU)\nПетров Петр (RU)",
		"patent holders":      `ООО "Ромашка" (RU)`,
	}

	obj, err := a.Build(row)
	require.NoError(t, err)
	assert.Equal(t, "2701234", obj.RegistrationNumber)
	assert.Equal(t, CategoryInvention, obj.Category)
	assert.Equal(t, "Способ получения", obj.Name)
	require.NotNil(t, obj.ApplicationDate)
	assert.Equal(t, 2019, obj.ApplicationDate.Year())
	assert.True(t, obj.Actual)
	assert.Equal(t, "Реферат", obj.Abstract)
	assert.Equal(t, "", obj.Claims)
	require.NotNil(t, obj.CreationYear)
	assert.Equal(t, 2019, *obj.CreationYear, "creation year comes from the application date")

	assert.Equal(t, []string{"Иванов Иван Иванович", "Петров Петр"}, a.Authors(row))
	assert.Equal(t, []string{`ООО "Ромашка"`}, a.Holders(row))
	assert.Nil(t, a.Countries(row))
}

func TestAdapter_CreationYearFallbacks(t *testing.T) {
	a, _ := AdapterFor(CategorySoftware)

	obj, err := a.Build(Row{"registration number": "1", "program name": "P", "registration date": "2021-06-01", "creation year": "2015"})
	require.NoError(t, err)
	assert.Equal(t, 2021, *obj.CreationYear)

	obj, err = a.Build(Row{"registration number": "1", "program name": "P", "creation year": "2015", "update year": "2017.0"})
	require.NoError(t, err)
	assert.Equal(t, 2015, *obj.CreationYear)
	assert.Equal(t, 2017, *obj.UpdateYear)

	obj, err = a.Build(Row{"registration number": "1", "program name": "P"})
	require.NoError(t, err)
	assert.Nil(t, obj.CreationYear)
}

func TestAdapter_BuildRejectsUnrepresentableValues(t *testing.T) {
	a, _ := AdapterFor(CategorySoftware)

	_, err := a.Build(Row{"registration number": "1", "program name": "P", "creation year": "someday"})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FieldCreationYear, fe.Field)

	_, err = a.Build(Row{"registration number": "1", "program name": "P", "publication year": "n/a"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FieldPublicationYear, fe.Field)
}

func TestAdapter_TopologyCountries(t *testing.T) {
	a, _ := AdapterFor(CategoryICTopology)
	row := Row{
		"registration number":   "2020630001",
		"microchip name":        "Чип",
		"first usage date":      "2019-12-01",
		"first usage countries": "Россия; (BY), KZ",
		"right holders":         "АО \"Микрон\" (RU),\nООО \"Лютик\" (RU)",
	}
	obj, err := a.Build(row)
	require.NoError(t, err)
	require.NotNil(t, obj.FirstUsageDate)
	assert.Equal(t, []string{"Россия", "BY", "KZ"}, a.Countries(row))
	assert.Equal(t, []string{`АО "Микрон"`, `ООО "Лютик"`}, a.Holders(row))
}
