// Package seed reads catalog seed files. Files are a JSON array of products
// and may be gzip compressed when the name ends in .gz.
package seed

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/money"
)

type productJSON struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Price             string `json:"price"`
	Category          string `json:"category"`
	AvailableQuantity int    `json:"availableQuantity"`
}

// ReadProducts decodes and validates a product list.
func ReadProducts(r io.Reader) ([]catalog.Product, error) {
	var raw []productJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}

	seen := make(map[string]struct{}, len(raw))
	products := make([]catalog.Product, 0, len(raw))
	for i, p := range raw {
		if p.ID == "" {
			return nil, errors.Errorf("product %d: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Errorf("product %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}

		price, err := money.Parse(p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s: price", p.ID)
		}
		if price.Cents() < 0 {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
		if p.AvailableQuantity < 0 {
			return nil, errors.Errorf("product %s: negative available quantity", p.ID)
		}
		products = append(products, catalog.Product{
			ID:                p.ID,
			Name:              p.Name,
			Price:             price,
			Category:          p.Category,
			AvailableQuantity: p.AvailableQuantity,
		})
	}
	return products, nil
}

// ReadProductsFile reads the seed file at path, decompressing .gz files.
func ReadProductsFile(path string) ([]catalog.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return ReadProducts(r)
}

// DefaultProducts returns the embedded default catalog.
func DefaultProducts(data []byte) ([]catalog.Product, error) {
	return ReadProducts(bytes.NewReader(data))
}
