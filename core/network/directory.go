package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/lib/cmap"
	"github.com/pyropy/dsn/lib/utils"
)

var (
	ErrContactNotFound = model.ErrContactNotFound
)

type EventType string

const (
	EventAdd   EventType = "add"
	EventShift EventType = "shift"
)

type Event struct {
	Type    EventType
	Contact model.Contact
}

type EventHandler func(Event)

// Directory keeps the liveness record of every known farmer. Each Add and
// Shift writes the record once and then notifies subscribers.
type Directory struct {
	mu    sync.Mutex
	store ds.Datastore
	now   func() time.Time

	subscribers cmap.Map[uint64, EventHandler]
	nextSub     atomic.Uint64
}

func NewDirectory(store ds.Datastore) *Directory {
	return &Directory{
		store: store,
		now:   time.Now,
	}
}

// OpenDirectory opens the leveldb backed directory under dsPath.
func OpenDirectory(dsPath string) (*Directory, error) {
	p := fmt.Sprintf("%s/contacts", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return NewDirectory(store), nil
}

func (d *Directory) Close() error {
	return d.store.Close()
}

// Add records a new or re-seen contact.
func (d *Directory) Add(ctx context.Context, contact model.Contact) (model.Contact, error) {
	d.mu.Lock()
	existing, err := d.get(ctx, contact.ID)
	switch {
	case err == nil:
		existing.Address = contact.Address
		contact = existing
	case !errors.Is(err, ErrContactNotFound):
		d.mu.Unlock()
		return model.Contact{}, err
	}

	contact.LastSeen = d.now()
	err = d.put(ctx, contact)
	d.mu.Unlock()
	if err != nil {
		return model.Contact{}, err
	}

	d.publish(Event{Type: EventAdd, Contact: contact})
	return contact, nil
}

// Shift moves a known contact to the most recently seen position.
func (d *Directory) Shift(ctx context.Context, id string) (model.Contact, error) {
	d.mu.Lock()
	contact, err := d.get(ctx, id)
	if err != nil {
		d.mu.Unlock()
		return model.Contact{}, err
	}

	contact.LastSeen = d.now()
	err = d.put(ctx, contact)
	d.mu.Unlock()
	if err != nil {
		return model.Contact{}, err
	}

	d.publish(Event{Type: EventShift, Contact: contact})
	return contact, nil
}

// RecordPing stores the time of the latest ping attempt.
func (d *Directory) RecordPing(ctx context.Context, id string, ts time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	contact, err := d.get(ctx, id)
	if err != nil {
		return err
	}

	contact.LastPinged = ts
	return d.put(ctx, contact)
}

func (d *Directory) Get(ctx context.Context, id string) (model.Contact, error) {
	return d.get(ctx, id)
}

func (d *Directory) All(ctx context.Context) ([]model.Contact, error) {
	res, err := d.store.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	contacts := make([]model.Contact, 0)
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}

		var contact model.Contact
		if err := json.Unmarshal(r.Value, &contact); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}

	return contacts, nil
}

// LeastSeen returns up to n contacts ordered by ascending LastSeen.
func (d *Directory) LeastSeen(ctx context.Context, n int) ([]model.Contact, error) {
	contacts, err := d.All(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(contacts, func(a, b model.Contact) int {
		return a.LastSeen.Compare(b.LastSeen)
	})

	return contacts[:clamp(n, len(contacts))], nil
}

// MostRecent returns up to n contacts ordered by descending LastSeen, skipping
// the ids in exclude.
func (d *Directory) MostRecent(ctx context.Context, n int, exclude []string) ([]model.Contact, error) {
	contacts, err := d.All(ctx)
	if err != nil {
		return nil, err
	}

	contacts = utils.Filter(contacts, func(c model.Contact) bool {
		return !utils.Contains(exclude, c.ID)
	})
	slices.SortFunc(contacts, func(a, b model.Contact) int {
		return b.LastSeen.Compare(a.LastSeen)
	})

	return contacts[:clamp(n, len(contacts))], nil
}

// Subscribe registers h for add and shift events and returns a function that
// removes it.
func (d *Directory) Subscribe(h EventHandler) func() {
	id := d.nextSub.Add(1)
	d.subscribers.Set(id, h)

	return func() {
		d.subscribers.Delete(id)
	}
}

func (d *Directory) publish(e Event) {
	d.subscribers.Range(func(_ uint64, h EventHandler) bool {
		h(e)
		return true
	})
}

// clamp bounds a requested sample size to [0, size].
func clamp(n, size int) int {
	return max(0, min(n, size))
}

func (d *Directory) get(ctx context.Context, id string) (model.Contact, error) {
	b, err := d.store.Get(ctx, ds.NewKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return model.Contact{}, fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}
	if err != nil {
		return model.Contact{}, err
	}

	var contact model.Contact
	if err := json.Unmarshal(b, &contact); err != nil {
		return model.Contact{}, err
	}

	return contact, nil
}

func (d *Directory) put(ctx context.Context, contact model.Contact) error {
	b, err := json.Marshal(contact)
	if err != nil {
		return err
	}

	return d.store.Put(ctx, ds.NewKey(contact.ID), b)
}
