package mystore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// All in-memory stores behave as tables of a single database: one lock
// serializes every transaction, whatever stores it touches.
var inMemoryLock sync.Mutex

type inMemoryTx struct {
	staged  map[any]any
	commits []func()
}

type InMemoryStore[T any] struct {
	items map[string]T
}

func NewInMemoryStore[T any](c context.Context) (*InMemoryStore[T], func(), error) {
	return &InMemoryStore[T]{
		items: make(map[string]T),
	}, func() {}, nil
}

func currentInMemoryTx(c context.Context) *inMemoryTx {
	tx, _ := c.Value(ctxTransactionKey{}).(*inMemoryTx)
	return tx
}

func (s *InMemoryStore[T]) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	if currentInMemoryTx(c) != nil {
		// join enclosing transaction
		return f(c)
	}

	// Start transaction
	inMemoryLock.Lock()
	defer inMemoryLock.Unlock()

	tx := &inMemoryTx{staged: map[any]any{}}

	// Within this block everything is transactional
	err := f(context.WithValue(c, ctxTransactionKey{}, tx))
	if err != nil {
		// Rollback: staged writes are dropped
		return err
	}

	// Commit
	for _, commit := range tx.commits {
		commit()
	}

	return nil
}

// stagedWrites returns the uncommitted writes of this store within tx. A nil value marks a delete.
func (s *InMemoryStore[T]) stagedWrites(tx *inMemoryTx) map[string]*T {
	staged, found := tx.staged[s]
	if found {
		return staged.(map[string]*T)
	}

	writes := map[string]*T{}
	tx.staged[s] = writes
	tx.commits = append(tx.commits, func() {
		for uid, value := range writes {
			if value == nil {
				delete(s.items, uid)
				continue
			}
			s.items[uid] = *value
		}
	})

	return writes
}

func (s *InMemoryStore[T]) Put(c context.Context, uid string, value T) error {
	cloned, err := clone(value)
	if err != nil {
		return fmt.Errorf("error storing entity with uid %s: %s", uid, err)
	}

	tx := currentInMemoryTx(c)
	if tx == nil {
		inMemoryLock.Lock()
		defer inMemoryLock.Unlock()

		s.items[uid] = cloned
		return nil
	}

	s.stagedWrites(tx)[uid] = &cloned

	return nil
}

func (s *InMemoryStore[T]) Get(c context.Context, uid string) (T, bool, error) {
	var result T

	tx := currentInMemoryTx(c)
	if tx == nil {
		inMemoryLock.Lock()
		defer inMemoryLock.Unlock()
	} else {
		staged, found := s.stagedWrites(tx)[uid]
		if found {
			if staged == nil {
				return result, false, nil
			}
			result, err := clone(*staged)
			return result, err == nil, err
		}
	}

	value, exists := s.items[uid]
	if !exists {
		return result, false, nil
	}

	result, err := clone(value)
	if err != nil {
		return result, false, fmt.Errorf("error fetching entity with uid %s: %s", uid, err)
	}

	return result, true, nil
}

func (s *InMemoryStore[T]) Delete(c context.Context, uid string) error {
	tx := currentInMemoryTx(c)
	if tx == nil {
		inMemoryLock.Lock()
		defer inMemoryLock.Unlock()

		delete(s.items, uid)
		return nil
	}

	s.stagedWrites(tx)[uid] = nil

	return nil
}

func (s *InMemoryStore[T]) List(c context.Context) ([]T, error) {
	return s.Query(c, nil, "")
}

func (s *InMemoryStore[T]) Query(c context.Context, filters []Filter, orderByField string) ([]T, error) {
	tx := currentInMemoryTx(c)
	if tx == nil {
		inMemoryLock.Lock()
		defer inMemoryLock.Unlock()
	}

	uids, view := s.visible(tx)

	result := make([]T, 0, len(uids))
	for _, uid := range uids {
		value := view[uid]

		ok, err := matchesAll(value, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		cloned, err := clone(value)
		if err != nil {
			return nil, fmt.Errorf("error fetching entity with uid %s: %s", uid, err)
		}
		result = append(result, cloned)
	}

	if orderByField != "" {
		err := orderBy(result, orderByField)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// visible merges committed items with the writes staged in tx, ordered by uid.
func (s *InMemoryStore[T]) visible(tx *inMemoryTx) ([]string, map[string]T) {
	view := make(map[string]T, len(s.items))
	for uid, value := range s.items {
		view[uid] = value
	}

	if tx != nil {
		for uid, staged := range s.stagedWrites(tx) {
			if staged == nil {
				delete(view, uid)
				continue
			}
			view[uid] = *staged
		}
	}

	uids := make([]string, 0, len(view))
	for uid := range view {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	return uids, view
}

// clone makes sure callers never share slices or maps with stored values.
func clone[T any](value T) (T, error) {
	var result T

	asJSON, err := json.Marshal(value)
	if err != nil {
		return result, err
	}

	err = json.Unmarshal(asJSON, &result)
	if err != nil {
		return result, err
	}

	return result, nil
}

func matchesAll[T any](value T, filters []Filter) (bool, error) {
	v := reflect.Indirect(reflect.ValueOf(value))

	for _, f := range filters {
		field := v.FieldByName(f.Field)
		if !field.IsValid() {
			return false, fmt.Errorf("unknown field %s", f.Field)
		}

		order, err := compareValues(field.Interface(), f.Value)
		if err != nil {
			return false, fmt.Errorf("error filtering on field %s: %s", f.Field, err)
		}

		var ok bool
		switch strings.TrimSpace(f.Compare) {
		case "=":
			ok = order == 0
		case "!=":
			ok = order != 0
		case "<":
			ok = order < 0
		case "<=":
			ok = order <= 0
		case ">":
			ok = order > 0
		case ">=":
			ok = order >= 0
		default:
			return false, fmt.Errorf("unsupported comparison %q", f.Compare)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func orderBy[T any](values []T, orderByField string) error {
	descending := strings.HasPrefix(orderByField, "-")
	fieldName := strings.TrimPrefix(orderByField, "-")

	var sortErr error
	sort.SliceStable(values, func(i, j int) bool {
		a := reflect.Indirect(reflect.ValueOf(values[i])).FieldByName(fieldName)
		b := reflect.Indirect(reflect.ValueOf(values[j])).FieldByName(fieldName)
		if !a.IsValid() || !b.IsValid() {
			sortErr = fmt.Errorf("unknown field %s", fieldName)
			return false
		}

		order, err := compareValues(a.Interface(), b.Interface())
		if err != nil {
			sortErr = err
			return false
		}
		if descending {
			return order > 0
		}
		return order < 0
	})

	return sortErr
}

func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		y, ok := b.(bool)
		if ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		y, ok := b.(time.Time)
		if ok {
			return x.Compare(y), nil
		}
	}

	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	switch {
	case isInt(av) && isInt(bv):
		return cmp.Compare(av.Int(), bv.Int()), nil
	case isNumber(av) && isNumber(bv):
		return cmp.Compare(asFloat(av), asFloat(bv)), nil
	}

	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isNumber(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
		return true
	}
	return isInt(v)
}

func asFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	}
	return float64(v.Int())
}
