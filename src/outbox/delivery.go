package outbox

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/google/uuid"
	"github.com/ugorji/go/codec"
)

// Delivery is one federation push waiting to reach a peer node. It is journaled
// before the first attempt so that a restart does not lose it.
type Delivery struct {
	ID          string            `codec:"id"`
	Target      identity.Identity `codec:"target"`
	Route       string            `codec:"route"`
	Body        []byte            `codec:"body"`
	Attempts    int               `codec:"attempts"`
	Created     time.Time         `codec:"created"`
	NextAttempt time.Time         `codec:"next_attempt"`
	LastError   string            `codec:"last_error"`
}

// NewDelivery ...
func NewDelivery(target identity.Identity, route string, body []byte) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		ID:          uuid.New().String(),
		Target:      target,
		Route:       route,
		Body:        body,
		Created:     now,
		NextAttempt: now,
	}
}

// Marshal - json encoding of Delivery
func (d *Delivery) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(d); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (d *Delivery) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(d)
}

// Journal persists the deliveries that have not reached their target yet.
type Journal interface {
	SaveDelivery(d *Delivery) error
	GetDelivery(id string) (*Delivery, error)
	DeleteDelivery(id string) error
	Deliveries() ([]*Delivery, error)
}

// InmemJournal is a Journal that forgets everything when the process exits.
type InmemJournal struct {
	sync.Mutex
	deliveries map[string][]byte
}

// NewInmemJournal ...
func NewInmemJournal() *InmemJournal {
	return &InmemJournal{
		deliveries: make(map[string][]byte),
	}
}

// SaveDelivery implements the Journal interface.
func (j *InmemJournal) SaveDelivery(d *Delivery) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}

	j.Lock()
	defer j.Unlock()

	j.deliveries[d.ID] = data

	return nil
}

// GetDelivery implements the Journal interface.
func (j *InmemJournal) GetDelivery(id string) (*Delivery, error) {
	j.Lock()
	data, ok := j.deliveries[id]
	j.Unlock()

	if !ok {
		return nil, common.NewErr("Delivery", common.NotFound, id)
	}

	d := new(Delivery)
	if err := d.Unmarshal(data); err != nil {
		return nil, err
	}

	return d, nil
}

// DeleteDelivery implements the Journal interface.
func (j *InmemJournal) DeleteDelivery(id string) error {
	j.Lock()
	defer j.Unlock()

	delete(j.deliveries, id)

	return nil
}

// Deliveries implements the Journal interface. Deliveries are returned oldest
// first.
func (j *InmemJournal) Deliveries() ([]*Delivery, error) {
	j.Lock()
	defer j.Unlock()

	res := make([]*Delivery, 0, len(j.deliveries))
	for _, data := range j.deliveries {
		d := new(Delivery)
		if err := d.Unmarshal(data); err != nil {
			return nil, err
		}
		res = append(res, d)
	}

	SortByCreated(res)

	return res, nil
}

// SortByCreated orders deliveries oldest first.
func SortByCreated(ds []*Delivery) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].Created.Before(ds[j].Created)
	})
}
