package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/db"
)

const sample = `[
  {"id": "1", "name": "Mouse", "price": "25.50", "category": "Accesorios", "availableQuantity": 3},
  {"id": "2", "name": "Laptop", "price": "1200", "category": "Electrónica", "availableQuantity": 1}
]`

func TestReadProducts(t *testing.T) {
	products, err := ReadProducts(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "25.50", products[0].Price.String())
	assert.Equal(t, int64(120000), products[1].Price.Cents())
	assert.Equal(t, 1, products[1].AvailableQuantity)
}

func TestReadProducts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "NotJSON", data: `{`, want: "decode products"},
		{name: "MissingID", data: `[{"price": "1"}]`, want: "id is required"},
		{name: "Duplicate", data: `[{"id": "a", "price": "1"}, {"id": "a", "price": "2"}]`, want: "duplicate id"},
		{name: "BadPrice", data: `[{"id": "a", "price": "abc"}]`, want: "price"},
		{name: "NegativeStock", data: `[{"id": "a", "price": "1", "availableQuantity": -1}]`, want: "negative available quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadProducts(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadProductsFile_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	products, err := ReadProductsFile(path)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestDefaultProducts(t *testing.T) {
	products, err := DefaultProducts(db.Products)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}
