package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"

	domain "github.com/muse-store/miniapp/internal/domain"
	pfirestore "github.com/muse-store/miniapp/internal/platform/firestore"
	"github.com/muse-store/miniapp/internal/repositories"
)

const (
	catalogCollection    = "catalog"
	heroDocumentID       = "hero"
	productCollection    = "products"
	collectionCollection = "collections"
)

type heroDocument struct {
	Images []string `firestore:"images"`
}

type productDocument struct {
	ID           int    `firestore:"id"`
	Name         string `firestore:"name"`
	Price        int64  `firestore:"price"`
	Description  string `firestore:"description"`
	Image        string `firestore:"image"`
	Badge        string `firestore:"badge,omitempty"`
	CollectionID int    `firestore:"collectionId"`
}

type collectionDocument struct {
	ID           int    `firestore:"id"`
	Title        string `firestore:"title"`
	Image        string `firestore:"image"`
	ProductCount int    `firestore:"productCount"`
}

// CatalogRepository reads the storefront catalog from Firestore. Hero slides live on a single
// document so that replace-or-append runs in one transaction.
type CatalogRepository struct {
	provider    *pfirestore.Provider
	hero        *pfirestore.Collection[heroDocument]
	products    *pfirestore.Collection[productDocument]
	collections *pfirestore.Collection[collectionDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider:    provider,
		hero:        pfirestore.NewCollection[heroDocument](provider, catalogCollection, nil),
		products:    pfirestore.NewCollection[productDocument](provider, productCollection, nil),
		collections: pfirestore.NewCollection[collectionDocument](provider, collectionCollection, nil),
	}, nil
}

func (r *CatalogRepository) Snapshot(ctx context.Context) (domain.Catalog, error) {
	images, err := r.heroImages(ctx)
	if err != nil {
		return domain.Catalog{}, err
	}
	productDocs, err := r.products.Query(ctx, orderByID)
	if err != nil {
		return domain.Catalog{}, err
	}
	collectionDocs, err := r.collections.Query(ctx, orderByID)
	if err != nil {
		return domain.Catalog{}, err
	}

	catalog := domain.Catalog{
		HeroImages:  images,
		Products:    make([]domain.Product, 0, len(productDocs)),
		Collections: make([]domain.Collection, 0, len(collectionDocs)),
	}
	for _, doc := range productDocs {
		catalog.Products = append(catalog.Products, decodeProduct(doc.Data))
	}
	for _, doc := range collectionDocs {
		catalog.Collections = append(catalog.Collections, decodeCollection(doc.Data))
	}
	return catalog, nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, productID int) (domain.Product, error) {
	doc, err := r.products.Get(ctx, docID(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.Data), nil
}

func (r *CatalogRepository) FindCollection(ctx context.Context, collectionID int) (domain.Collection, error) {
	doc, err := r.collections.Get(ctx, docID(collectionID))
	if err != nil {
		return domain.Collection{}, err
	}
	return decodeCollection(doc.Data), nil
}

func (r *CatalogRepository) HeroImage(ctx context.Context, index int) (string, error) {
	images, err := r.heroImages(ctx)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(images) {
		return "", pfirestore.NotFound("catalog.hero", fmt.Errorf("slide %d does not exist", index))
	}
	return images[index], nil
}

func (r *CatalogRepository) HeroCount(ctx context.Context) (int, error) {
	images, err := r.heroImages(ctx)
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

func (r *CatalogRepository) ReplaceHeroImage(ctx context.Context, index int, image string) error {
	ref, err := r.hero.DocumentRef(ctx, heroDocumentID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var images []string
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			doc, decodeErr := r.hero.Decode(snap)
			if decodeErr != nil {
				return decodeErr
			}
			images = doc.Data.Images
		case !isNotFound(err):
			return err
		}

		switch {
		case index < 0 || index > len(images):
			return fmt.Errorf("%w: %d", repositories.ErrHeroIndexOutOfRange, index)
		case index == len(images):
			images = append(images, image)
		default:
			images[index] = image
		}
		return tx.Set(ref, heroDocument{Images: images})
	})
}

func (r *CatalogRepository) ReplaceProductImage(ctx context.Context, productID int, image string) error {
	ref, err := r.products.DocumentRef(ctx, docID(productID))
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{{Path: "image", Value: image}})
	return pfirestore.WrapError("products.update", err)
}

func (r *CatalogRepository) ReplaceCollectionImage(ctx context.Context, collectionID int, image string) error {
	ref, err := r.collections.DocumentRef(ctx, docID(collectionID))
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{{Path: "image", Value: image}})
	return pfirestore.WrapError("collections.update", err)
}

// Import writes the supplied catalog, overwriting documents with matching ids. Used to seed
// emulator and fresh projects.
func (r *CatalogRepository) Import(ctx context.Context, catalog domain.Catalog) error {
	heroRef, err := r.hero.DocumentRef(ctx, heroDocumentID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(heroRef, heroDocument{Images: catalog.HeroImages}); err != nil {
			return err
		}
		for _, product := range catalog.Products {
			ref, err := r.products.DocumentRef(ctx, docID(product.ID))
			if err != nil {
				return err
			}
			if err := tx.Set(ref, encodeProduct(product)); err != nil {
				return err
			}
		}
		for _, collection := range catalog.Collections {
			ref, err := r.collections.DocumentRef(ctx, docID(collection.ID))
			if err != nil {
				return err
			}
			if err := tx.Set(ref, encodeCollection(collection)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CatalogRepository) heroImages(ctx context.Context) ([]string, error) {
	doc, err := r.hero.Get(ctx, heroDocumentID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Data.Images, nil
}

func orderByID(q firestore.Query) firestore.Query {
	return q.OrderBy("id", firestore.Asc)
}

func docID(id int) string {
	return strconv.Itoa(id)
}

func isNotFound(err error) bool {
	return repositories.IsNotFound(pfirestore.WrapError("", err))
}

func decodeProduct(doc productDocument) domain.Product {
	return domain.Product{
		ID:           doc.ID,
		Name:         doc.Name,
		Price:        doc.Price,
		Description:  doc.Description,
		Image:        doc.Image,
		Badge:        doc.Badge,
		CollectionID: doc.CollectionID,
	}
}

func encodeProduct(p domain.Product) productDocument {
	return productDocument{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Description:  p.Description,
		Image:        p.Image,
		Badge:        p.Badge,
		CollectionID: p.CollectionID,
	}
}

func decodeCollection(doc collectionDocument) domain.Collection {
	return domain.Collection{
		ID:           doc.ID,
		Title:        doc.Title,
		Image:        doc.Image,
		ProductCount: doc.ProductCount,
	}
}

func encodeCollection(c domain.Collection) collectionDocument {
	return collectionDocument{
		ID:           c.ID,
		Title:        c.Title,
		Image:        c.Image,
		ProductCount: c.ProductCount,
	}
}
