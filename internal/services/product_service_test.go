package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateProductRequest
		err  error
	}{
		{
			name: "both price shapes",
			req:  CreateProductRequest{SellerID: testSeller, Name: "A", FlatPrice: "1.00", Prices: map[string]string{"daily": "1.00"}},
			err:  ErrValidation,
		},
		{
			name: "no price",
			req:  CreateProductRequest{SellerID: testSeller, Name: "A"},
			err:  ErrValidation,
		},
		{
			name: "unknown tier",
			req:  CreateProductRequest{SellerID: testSeller, Name: "A", Prices: map[string]string{"weekly": "1.00"}},
			err:  ErrValidation,
		},
		{
			name: "negative price",
			req:  CreateProductRequest{SellerID: testSeller, Name: "A", FlatPrice: "-1"},
			err:  ErrValidation,
		},
		{
			name: "bad seller id",
			req:  CreateProductRequest{SellerID: "seller", Name: "A", FlatPrice: "1"},
			err:  ErrValidation,
		},
		{
			name: "blank name",
			req:  CreateProductRequest{SellerID: testSeller, Name: "  ", FlatPrice: "1"},
			err:  ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := env.products.CreateProduct(ctx, &req)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCreateProductRejectsDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createFlatProduct(t, "Widget", "1.00")

	_, err := env.products.CreateProduct(ctx, &CreateProductRequest{SellerID: testSeller, Name: "Widget", FlatPrice: "2.00"})
	assert.ErrorIs(t, err, ErrProductExists)

	// Names are unique per seller only.
	_, err = env.products.CreateProduct(ctx, &CreateProductRequest{SellerID: testOther, Name: "Widget", FlatPrice: "2.00"})
	assert.NoError(t, err)
}

func TestProductPricingRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created := env.createTieredProduct(t, "Widget", map[string]string{"lifetime": "49.90", "daily": "0.99"})

	product, err := env.products.GetProductByName(ctx, "Widget", testSeller)
	require.NoError(t, err)
	assert.Equal(t, created.ID, product.ID)

	pricing := product.Pricing()
	assert.False(t, pricing.IsFlat())
	assert.Equal(t, []models.LicenseTier{models.TierDaily, models.TierLifetime}, pricing.Tiers())

	lifetime := models.TierLifetime
	price, err := pricing.PriceFor(&lifetime)
	require.NoError(t, err)
	assert.Equal(t, "49.90", price.StringFixed(2))
}

func TestDeleteProductRemovesKeysAndListings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := env.createFlatProduct(t, "Widget", "1.00")
	env.addKeys(t, product, "", "K-1", "K-2")
	_, err := env.products.CreateListing(ctx, sellerActor, product.ID, "shop")
	require.NoError(t, err)

	_, err = env.products.DeleteProduct(ctx, otherActor, product.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = env.products.DeleteProduct(ctx, sellerActor, product.ID)
	require.NoError(t, err)

	var keys, listings int64
	require.NoError(t, env.db.Model(&models.LicenseKey{}).Count(&keys).Error)
	require.NoError(t, env.db.Model(&models.ProductListing{}).Count(&listings).Error)
	assert.Zero(t, keys)
	assert.Zero(t, listings)

	_, err = env.products.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createFlatProduct(t, "Alpha", "1.00")
	env.createFlatProduct(t, "Beta", "1.00")
	_, err := env.products.CreateProduct(ctx, &CreateProductRequest{SellerID: testOther, Name: "Gamma", FlatPrice: "1.00"})
	require.NoError(t, err)

	all, total, err := env.products.ListProducts(ctx, ProductSearchParams{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 10, Sort: "name", Order: "asc"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha", all[0].Name)

	mine, err := env.products.ListBySeller(ctx, testSeller)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
