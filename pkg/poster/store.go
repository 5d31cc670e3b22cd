// store.go - Form state store with allow-list merge and change subscriptions.
package poster

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Change describes one effective store write.
type Change struct {
	Prev   FormState
	Next   FormState
	Fields []Field
}

// Has reports whether f is among the changed fields.
func (c Change) Has(fields ...Field) bool {
	for _, f := range c.Fields {
		for _, want := range fields {
			if f == want {
				return true
			}
		}
	}
	return false
}

// Listener receives store changes.
type Listener func(Change)

// editable is the allow-list for Update. userAvatar is absent on purpose:
// only SetAvatar writes it.
var editable = map[Field]struct{}{
	FieldTrainingName:     {},
	FieldTrainingNo:       {},
	FieldUserName:         {},
	FieldClockDays:        {},
	FieldTotalTargetCount: {},
	FieldTotalPoints:      {},
}

// Store is the single source of truth for the form.
type Store struct {
	mu        sync.Mutex
	state     FormState
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update merges the allow-listed keys of changed into the state. Unknown
// keys, such as the upload control's file wrapper, are dropped. Values that
// cannot be coerced are skipped and reported in the returned error while the
// remaining keys are still merged. It returns the fields whose value changed.
func (s *Store) Update(changed map[string]any) ([]Field, error) {
	var errs []error

	s.mu.Lock()
	prev := s.state.Clone()
	next := s.state.Clone()
	for key, raw := range changed {
		f := Field(key)
		if _, ok := editable[f]; !ok {
			continue
		}
		if err := assign(&next, f, raw); err != nil {
			errs = append(errs, err)
		}
	}
	fields := Diff(prev, next)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Change{Prev: prev, Next: next.Clone(), Fields: fields})
	return fields, errors.Join(errs...)
}

// SetAvatar replaces userAvatar. Only avatar ingestion calls it.
func (s *Store) SetAvatar(dataURI string) {
	s.mu.Lock()
	prev := s.state.Clone()
	s.state.UserAvatar = dataURI
	next := s.state.Clone()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if prev.UserAvatar == dataURI {
		return
	}
	notify(listeners, Change{Prev: prev, Next: next, Fields: []Field{FieldUserAvatar}})
}

// Reset clears every field.
func (s *Store) Reset() {
	s.mu.Lock()
	prev := s.state.Clone()
	s.state = FormState{}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Change{Prev: prev, Next: FormState{}, Fields: Diff(prev, FormState{})})
}

// Subscribe registers fn for every effective change, in subscription order.
// Listeners run after the write, outside the store lock, and may read the
// store. The returned func unsubscribes.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.listeners[id])
	}
	return out
}

func notify(listeners []Listener, c Change) {
	if len(c.Fields) == 0 {
		return
	}
	for _, fn := range listeners {
		fn(c)
	}
}

// Diff returns the fields whose values differ between a and b, in form order.
func Diff(a, b FormState) []Field {
	var out []Field
	for _, f := range Fields {
		if !a.equal(b, f) {
			out = append(out, f)
		}
	}
	return out
}

// assign coerces raw into field f of st.
func assign(st *FormState, f Field, raw any) error {
	if p := st.stringField(f); p != nil {
		v, err := toString(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidValue, f, err)
		}
		*p = v
		return nil
	}

	p := st.intField(f)
	if p == nil {
		return nil
	}
	v, ok, err := toInt(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, f, err)
	}
	if !ok {
		*p = nil
		return nil
	}
	if spec, found := Spec(f); found {
		v = min(max(v, spec.Min), spec.Max)
	}
	*p = &v
	return nil
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("unsupported type %T", raw)
}

// toInt reports ok=false when raw clears the field.
func toInt(raw any) (int, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		return int(v), true, nil
	case uint64:
		if v > math.MaxInt32 {
			return 0, false, fmt.Errorf("%d overflows", v)
		}
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false, fmt.Errorf("%v is not an integer", v)
		}
		if math.Abs(v) > math.MaxInt32 {
			return 0, false, fmt.Errorf("%v overflows", v)
		}
		return int(v), true, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return toInt(n)
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%q is not a number", v.String())
		}
		return toInt(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("%q is not an integer", v)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("unsupported type %T", raw)
}
