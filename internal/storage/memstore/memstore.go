// Package memstore is an in-memory catalog store. It backs dry runs of the
// feed importer and unit tests of the services above the storage layer.
//
// Transactions are serialized: Store.Do holds the store lock for the
// duration of fn and works on a copy that replaces the committed state only
// when fn succeeds.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/uow"
	"github.com/xenking/catalog-service/internal/domain/visibility"
)

var _ uow.UnitOfWork = (*Store)(nil)

type refKey struct {
	tenant, system, external string
}

type visKey struct {
	product, tenant string
}

type state struct {
	seq        int
	products   map[string]product.Product
	created    map[string]int
	refs       map[refKey]string
	tiers      map[string]price.Tier
	tierSeq    map[string]int
	brands     map[string]brand.Brand
	categories map[string]category.Category
	promos     map[string]promo.Promo
	promoSeq   map[string]int
	promoTypes map[string]promo.Type
	visibility map[visKey]visibility.Entry
}

func newState() *state {
	s := &state{
		products:   make(map[string]product.Product),
		created:    make(map[string]int),
		refs:       make(map[refKey]string),
		tiers:      make(map[string]price.Tier),
		tierSeq:    make(map[string]int),
		brands:     make(map[string]brand.Brand),
		categories: make(map[string]category.Category),
		promos:     make(map[string]promo.Promo),
		promoSeq:   make(map[string]int),
		promoTypes: make(map[string]promo.Type),
		visibility: make(map[visKey]visibility.Entry),
	}
	for _, t := range promo.KnownTypes {
		s.promoTypes[t.Code] = t
	}
	return s
}

// clone copies the maps. Stored values are replaced, never mutated in
// place, so sharing their slices is safe.
func (s *state) clone() *state {
	return &state{
		seq:        s.seq,
		products:   maps.Clone(s.products),
		created:    maps.Clone(s.created),
		refs:       maps.Clone(s.refs),
		tiers:      maps.Clone(s.tiers),
		tierSeq:    maps.Clone(s.tierSeq),
		brands:     maps.Clone(s.brands),
		categories: maps.Clone(s.categories),
		promos:     maps.Clone(s.promos),
		promoSeq:   maps.Clone(s.promoSeq),
		promoTypes: maps.Clone(s.promoTypes),
		visibility: maps.Clone(s.visibility),
	}
}

func (s *state) next() int {
	s.seq++
	return s.seq
}

// Store is an in-memory implementation of every catalog repository.
type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
}

// New creates an empty Store seeded with the known promo types.
func New() *Store {
	return &Store{st: newState(), faults: make(map[string]error)}
}

// FailOn makes the named repository operation (for example
// "Prices.Create") return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Do runs fn against a private copy of the state and commits it when fn
// returns nil.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, r uow.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &view{st: s.st.clone(), faults: s.faults}
	if err := fn(ctx, tx.repositories()); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Repositories returns auto-committing repositories over the store.
func (s *Store) Repositories() uow.Repositories {
	return s.auto().repositories()
}

// Categories returns a category reader.
func (s *Store) Categories() category.Repository {
	return categories{s.auto()}
}

// AddCategory stores c.
func (s *Store) AddCategory(c category.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.categories[c.ID] = c
}

func (s *Store) auto() *view {
	return &view{store: s, faults: s.faults}
}

// view is a set of repositories over one state. Inside a transaction st is
// the private copy; outside, store is set and every call locks it.
type view struct {
	st     *state
	store  *Store
	faults map[string]error
}

func (v *view) enter(op string) (*state, func(), error) {
	if v.store == nil {
		if err := v.faults[op]; err != nil {
			return nil, nil, err
		}
		return v.st, func() {}, nil
	}
	v.store.mu.Lock()
	if err := v.faults[op]; err != nil {
		v.store.mu.Unlock()
		return nil, nil, err
	}
	return v.store.st, v.store.mu.Unlock, nil
}

func (v *view) repositories() uow.Repositories {
	return uow.Repositories{
		Products:   products{v},
		Prices:     prices{v},
		Brands:     brands{v},
		Promos:     promos{v},
		PromoTypes: promoTypes{v},
		Visibility: visibilityStore{v},
	}
}

func bySeq[T any](items []T, seq func(T) int) []T {
	slices.SortStableFunc(items, func(a, b T) int { return seq(a) - seq(b) })
	return items
}
