package memory

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/repositories"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	HeroImages  []string         `yaml:"hero_images"`
	Collections []seedCollection `yaml:"collections"`
	Products    []seedProduct    `yaml:"products"`
	Reviews     []seedReview     `yaml:"reviews"`
}

type seedCollection struct {
	ID           int    `yaml:"id"`
	Title        string `yaml:"title"`
	Image        string `yaml:"image"`
	ProductCount int    `yaml:"product_count"`
}

type seedProduct struct {
	ID           int    `yaml:"id"`
	Name         string `yaml:"name"`
	Price        int64  `yaml:"price"`
	Description  string `yaml:"description"`
	Image        string `yaml:"image"`
	Badge        string `yaml:"badge"`
	CollectionID int    `yaml:"collection_id"`
}

type seedReview struct {
	ID        string `yaml:"id"`
	ProductID int    `yaml:"product_id"`
	Author    string `yaml:"author"`
	Rating    int    `yaml:"rating"`
	Text      string `yaml:"text"`
	Date      string `yaml:"date"`
}

// Seed returns a fresh copy of the embedded catalog and its reviews.
func Seed() (domain.Catalog, []domain.Review, error) {
	var file seedFile
	if err := yaml.Unmarshal(seedYAML, &file); err != nil {
		return domain.Catalog{}, nil, fmt.Errorf("memory: parse seed catalog: %w", err)
	}

	catalog := domain.Catalog{HeroImages: append([]string(nil), file.HeroImages...)}
	for _, c := range file.Collections {
		catalog.Collections = append(catalog.Collections, domain.Collection{
			ID:           c.ID,
			Title:        c.Title,
			Image:        c.Image,
			ProductCount: c.ProductCount,
		})
	}
	for _, p := range file.Products {
		catalog.Products = append(catalog.Products, domain.Product{
			ID:           p.ID,
			Name:         p.Name,
			Price:        p.Price,
			Description:  p.Description,
			Image:        p.Image,
			Badge:        p.Badge,
			CollectionID: p.CollectionID,
		})
	}
	reviews := make([]domain.Review, 0, len(file.Reviews))
	for _, r := range file.Reviews {
		reviews = append(reviews, domain.Review{
			ID:        r.ID,
			ProductID: r.ProductID,
			Author:    r.Author,
			Rating:    r.Rating,
			Text:      r.Text,
			Date:      r.Date,
		})
	}
	return catalog, reviews, nil
}

// CatalogRepository keeps the catalog in process memory. Replacements mutate the shared copy,
// so every session served by the process observes committed edits.
type CatalogRepository struct {
	mu      sync.RWMutex
	catalog domain.Catalog
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository wraps the supplied catalog. The repository takes ownership of the slices.
func NewCatalogRepository(catalog domain.Catalog) *CatalogRepository {
	return &CatalogRepository{catalog: catalog}
}

// NewSeedCatalogRepository loads the embedded seed catalog.
func NewSeedCatalogRepository() (*CatalogRepository, error) {
	catalog, _, err := Seed()
	if err != nil {
		return nil, err
	}
	return NewCatalogRepository(catalog), nil
}

func (r *CatalogRepository) Snapshot(context.Context) (domain.Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.Catalog{
		HeroImages:  append([]string(nil), r.catalog.HeroImages...),
		Products:    append([]domain.Product(nil), r.catalog.Products...),
		Collections: append([]domain.Collection(nil), r.catalog.Collections...),
	}, nil
}

func (r *CatalogRepository) FindProduct(_ context.Context, productID int) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.productIndex(productID); i >= 0 {
		return r.catalog.Products[i], nil
	}
	return domain.Product{}, repositories.NewNotFoundError("product", productID)
}

func (r *CatalogRepository) FindCollection(_ context.Context, collectionID int) (domain.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.collectionIndex(collectionID); i >= 0 {
		return r.catalog.Collections[i], nil
	}
	return domain.Collection{}, repositories.NewNotFoundError("collection", collectionID)
}

func (r *CatalogRepository) HeroImage(_ context.Context, index int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.catalog.HeroImages) {
		return "", repositories.NewNotFoundError("hero slide", index)
	}
	return r.catalog.HeroImages[index], nil
}

func (r *CatalogRepository) HeroCount(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.catalog.HeroImages), nil
}

func (r *CatalogRepository) ReplaceHeroImage(_ context.Context, index int, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case index < 0 || index > len(r.catalog.HeroImages):
		return fmt.Errorf("%w: %d", repositories.ErrHeroIndexOutOfRange, index)
	case index == len(r.catalog.HeroImages):
		r.catalog.HeroImages = append(r.catalog.HeroImages, image)
	default:
		r.catalog.HeroImages[index] = image
	}
	return nil
}

func (r *CatalogRepository) ReplaceProductImage(_ context.Context, productID int, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.productIndex(productID)
	if i < 0 {
		return repositories.NewNotFoundError("product", productID)
	}
	r.catalog.Products[i].Image = image
	return nil
}

func (r *CatalogRepository) ReplaceCollectionImage(_ context.Context, collectionID int, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.collectionIndex(collectionID)
	if i < 0 {
		return repositories.NewNotFoundError("collection", collectionID)
	}
	r.catalog.Collections[i].Image = image
	return nil
}

// RemoveCollection deletes a collection. Catalog ownership is external, so this only exists to
// let callers simulate upstream removals.
func (r *CatalogRepository) RemoveCollection(collectionID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.collectionIndex(collectionID)
	if i < 0 {
		return false
	}
	r.catalog.Collections = append(r.catalog.Collections[:i], r.catalog.Collections[i+1:]...)
	return true
}

// RemoveProduct deletes a product, mirroring RemoveCollection.
func (r *CatalogRepository) RemoveProduct(productID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.productIndex(productID)
	if i < 0 {
		return false
	}
	r.catalog.Products = append(r.catalog.Products[:i], r.catalog.Products[i+1:]...)
	return true
}

func (r *CatalogRepository) productIndex(id int) int {
	for i, p := range r.catalog.Products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *CatalogRepository) collectionIndex(id int) int {
	for i, c := range r.catalog.Collections {
		if c.ID == id {
			return i
		}
	}
	return -1
}
