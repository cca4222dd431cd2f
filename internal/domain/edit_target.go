package domain

import (
	"errors"
	"fmt"
	"strings"
)

// EditKind discriminates the catalog collection addressed by an EditTarget.
type EditKind string

const (
	EditKindHero       EditKind = "hero"
	EditKindProduct    EditKind = "product"
	EditKindCollection EditKind = "collection"
)

// ErrUnknownEditKind is returned when parsing an unsupported edit kind.
var ErrUnknownEditKind = errors.New("domain: unknown edit kind")

// ParseEditKind normalises the raw kind string.
func ParseEditKind(raw string) (EditKind, error) {
	switch EditKind(strings.ToLower(strings.TrimSpace(raw))) {
	case EditKindHero:
		return EditKindHero, nil
	case EditKindProduct:
		return EditKindProduct, nil
	case EditKindCollection:
		return EditKindCollection, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEditKind, raw)
	}
}

// EditTarget addresses exactly one mutable image slot in the catalog. Index is only meaningful
// for hero slides, ID only for products and collections.
type EditTarget struct {
	Kind  EditKind
	Index int
	ID    int
}

// HeroTarget addresses the hero slide at index. An index equal to the slide count addresses a
// slide that does not exist yet.
func HeroTarget(index int) EditTarget {
	return EditTarget{Kind: EditKindHero, Index: index}
}

// ProductTarget addresses the image of the product with the given id.
func ProductTarget(id int) EditTarget {
	return EditTarget{Kind: EditKindProduct, ID: id}
}

// CollectionTarget addresses the cover image of the collection with the given id.
func CollectionTarget(id int) EditTarget {
	return EditTarget{Kind: EditKindCollection, ID: id}
}

// Valid reports whether the payload matches the tag.
func (t EditTarget) Valid() bool {
	switch t.Kind {
	case EditKindHero:
		return t.Index >= 0 && t.ID == 0
	case EditKindProduct, EditKindCollection:
		return t.ID > 0 && t.Index == 0
	default:
		return false
	}
}

// Title returns the chooser heading shown when the edit starts.
func (t EditTarget) Title() string {
	switch t.Kind {
	case EditKindHero:
		return "Edit Slide"
	case EditKindCollection:
		return "Edit Collection Cover"
	default:
		return "Edit Product Image"
	}
}

func (t EditTarget) String() string {
	if t.Kind == EditKindHero {
		return fmt.Sprintf("hero[%d]", t.Index)
	}
	return fmt.Sprintf("%s#%d", t.Kind, t.ID)
}
