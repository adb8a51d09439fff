package product

import "github.com/gosimple/slug"

// Slugify derives the URL slug of a product or attribute name: lowercase,
// transliterated to ASCII, with runs of other characters collapsed to a
// single hyphen.
func Slugify(name string) string {
	return slug.Make(name)
}
