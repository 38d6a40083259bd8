package catalog

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/techshop/internal/model"
)

//go:embed data/products.json data/categories.json
var seedFS embed.FS

// SeedData は同梱の初期カタログを返す。呼び出しごとに新しいスライスを返す。
func SeedData() ([]*model.Product, []*model.Category, error) {
	var products []*model.Product
	if err := decodeSeed("data/products.json", &products); err != nil {
		return nil, nil, err
	}
	var categories []*model.Category
	if err := decodeSeed("data/categories.json", &categories); err != nil {
		return nil, nil, err
	}
	return products, categories, nil
}

func decodeSeed(name string, v any) error {
	data, err := seedFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// FallbackProducts はカタログストアが読めない場合に返す固定の商品リスト。
func FallbackProducts() []*model.Product {
	const image = "/15pro.png?height=300&width=300"
	return []*model.Product{
		{
			ID:          101,
			Name:        "iPhone 15 Pro Max 256GB",
			Description: "Apple A17 Pro chipi, 6.7″ Super Retina XDR displey, 48MP kamera tizimi",
			Price:       17500000,
			Image:       image,
			Category:    "Smartfonlar",
			Stock:       12,
			IsNew:       true,
		},
		{
			ID:          102,
			Name:        "Samsung Galaxy S24 Ultra 512GB",
			Description: "Snapdragon 8 Gen 3, 200MP kamera, 6.8″ Dynamic AMOLED 2X",
			Price:       16200000,
			Image:       image,
			Category:    "Smartfonlar",
			Stock:       8,
			IsNew:       true,
		},
		{
			ID:          201,
			Name:        "MacBook Pro 14″ M3 Pro 512GB",
			Description: "Apple M3 Pro chip, 14″ Liquid Retina XDR, 18 soat batareya",
			Price:       28500000,
			Image:       image,
			Category:    "Noutbuklar",
			Stock:       6,
			IsNew:       true,
		},
		{
			ID:          301,
			Name:        "Sony WH-1000XM5",
			Description: "Premium noise canceling, 30 soat quvvat, Hi-Res Audio",
			Price:       3800000,
			Image:       image,
			Category:    "Audio",
			Stock:       20,
			IsNew:       false,
		},
	}
}
