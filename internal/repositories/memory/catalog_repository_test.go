package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

func TestSeedLoadsEmbeddedCatalog(t *testing.T) {
	catalog, reviews, err := Seed()
	require.NoError(t, err)

	assert.Len(t, catalog.HeroImages, 4)
	assert.Len(t, catalog.Collections, 4)
	require.Len(t, catalog.Products, 5)
	assert.Equal(t, "The Muse Tote", catalog.Products[0].Name)
	assert.EqualValues(t, 320, catalog.Products[0].Price)
	assert.Equal(t, "Best Seller", catalog.Products[0].Badge)
	assert.Equal(t, "Travel Series", catalog.Collections[3].Title)
	assert.Len(t, reviews, 3)
}

func TestCatalogRepositoryHeroReplaceAndAppend(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(domain.Catalog{HeroImages: []string{"a", "b"}})

	require.NoError(t, repo.ReplaceHeroImage(ctx, 1, "b2"))
	require.NoError(t, repo.ReplaceHeroImage(ctx, 2, "c"))

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b2", "c"}, snap.HeroImages)

	err = repo.ReplaceHeroImage(ctx, 5, "x")
	assert.True(t, errors.Is(err, repositories.ErrHeroIndexOutOfRange))

	_, err = repo.HeroImage(ctx, 3)
	assert.True(t, repositories.IsNotFound(err))
}

func TestCatalogRepositorySnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(domain.Catalog{
		HeroImages: []string{"a"},
		Products:   []domain.Product{{ID: 1, Image: "p1"}},
	})

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	snap.HeroImages[0] = "mutated"
	snap.Products[0].Image = "mutated"

	image, err := repo.HeroImage(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", image)
	product, err := repo.FindProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "p1", product.Image)
}

func TestCatalogRepositoryReplaceMissingEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(domain.Catalog{
		Products:    []domain.Product{{ID: 1, Image: "p1"}},
		Collections: []domain.Collection{{ID: 2, Image: "c2"}},
	})

	require.True(t, repo.RemoveCollection(2))
	assert.True(t, repositories.IsNotFound(repo.ReplaceCollectionImage(ctx, 2, "new")))
	assert.True(t, repositories.IsNotFound(repo.ReplaceProductImage(ctx, 9, "new")))

	require.NoError(t, repo.ReplaceProductImage(ctx, 1, "p1-new"))
	product, err := repo.FindProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "p1-new", product.Image)
}

func TestReviewRepositoryInsertsNewestFirst(t *testing.T) {
	ctx := context.Background()
	_, seed, err := Seed()
	require.NoError(t, err)
	repo := NewReviewRepository(seed)

	require.NoError(t, repo.Insert(ctx, domain.Review{ID: "new", ProductID: 1, Author: "You", Rating: 3}))

	reviews, err := repo.ListByProduct(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, "new", reviews[0].ID)

	none, err := repo.ListByProduct(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, repo.Insert(ctx, domain.Review{ProductID: 1}))
}
