package product

// Patch is a sparse product update carried by upstream events. Nil fields
// are left untouched.
type Patch struct {
	Name     *string
	BarCode  *string
	InCase   *int
	Size     any
	BrandID  *string
	IsActive *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.BarCode == nil && p.InCase == nil &&
		p.Size == nil && p.BrandID == nil && p.IsActive == nil
}

// Apply copies the set fields onto prod and reports whether anything
// changed. A name change regenerates the slug. newID mints the attribute ID
// when the size attribute has to be appended.
func (p Patch) Apply(prod *Product, newID func() string) bool {
	changed := false
	if p.Name != nil && *p.Name != prod.Name {
		prod.Name = *p.Name
		prod.Slug = Slugify(*p.Name)
		changed = true
	}
	if p.BarCode != nil && *p.BarCode != prod.BarCode {
		prod.BarCode = *p.BarCode
		changed = true
	}
	if p.InCase != nil && *p.InCase != prod.InCase {
		prod.InCase = *p.InCase
		changed = true
	}
	if p.BrandID != nil && *p.BrandID != prod.BrandID {
		prod.BrandID = *p.BrandID
		changed = true
	}
	if p.IsActive != nil && *p.IsActive != prod.IsActive {
		prod.IsActive = *p.IsActive
		changed = true
	}
	if p.Size != nil {
		prod.SetAttribute(SizeAttribute(newID(), p.Size))
		changed = true
	}
	return changed
}
