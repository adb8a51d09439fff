package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
)

// decodeDecimal accepts numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeAttribute(d *jx.Decoder) (product.Attribute, error) {
	var a product.Attribute
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			a.ID, err = d.Str()
		case "name":
			a.Name, err = d.Str()
		case "slug":
			a.Slug, err = d.Str()
		case "key":
			a.Key, err = d.Str()
		case "value":
			switch d.Next() {
			case jx.Number:
				a.Value, err = d.Float64()
			case jx.String:
				a.Value, err = d.Str()
			case jx.Bool:
				a.Value, err = d.Bool()
			default:
				err = d.Skip()
			}
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}

func decodeNewProduct(d *jx.Decoder) (catalog.NewProduct, error) {
	var n catalog.NewProduct
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customerId":
			n.TenantID, err = d.Str()
		case "name":
			n.Name, err = d.Str()
		case "barCode":
			n.BarCode, err = d.Str()
		case "vendorId":
			n.VendorID, err = d.Str()
		case "brandId":
			n.BrandID, err = d.Str()
		case "categoryId":
			n.CategoryID, err = d.Str()
		case "description":
			n.Description, err = d.Str()
		case "images":
			n.Images, err = decodeStrings(d)
		case "attributes":
			err = d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAttribute(d)
				if err != nil {
					return err
				}
				n.Attributes = append(n.Attributes, a)
				return nil
			})
		case "inCase":
			n.InCase, err = d.Int()
		case "priority":
			n.Priority, err = d.Int()
		case "price":
			n.Price, err = decodeDecimal(d)
		case "cost":
			n.Cost, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	return n, err
}

func decodeNewProducts(d *jx.Decoder) ([]catalog.NewProduct, error) {
	var out []catalog.NewProduct
	products := func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			n, err := decodeNewProduct(d)
			if err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	}
	if d.Next() == jx.Array {
		return out, products(d)
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "products" {
			return products(d)
		}
		return d.Skip()
	})
	return out, err
}

func decodeNewTier(d *jx.Decoder) (catalog.NewTier, error) {
	var n catalog.NewTier
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "type":
			var s string
			s, err = d.Str()
			n.Type = price.TierType(s)
		case "level":
			n.Level, err = d.Int()
		case "entityReferences":
			n.EntityReferences, err = decodeStrings(d)
		case "price":
			n.Price, err = decodeDecimal(d)
		case "cost":
			n.Cost, err = decodeDecimal(d)
		case "prices":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "price":
					n.Price, err = decodeDecimal(d)
				case "cost":
					n.Cost, err = decodeDecimal(d)
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	return n, err
}
