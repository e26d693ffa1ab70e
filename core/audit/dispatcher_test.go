package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/queue"
)

func newTestDispatcher(t *testing.T, farmer *farmerStub, timeout time.Duration) (*Dispatcher, *queue.RedisStore) {
	t.Helper()
	store := newTestStore(t)
	contacts := contactsStub{"farmer-1": {ID: "farmer-1", Address: "127.0.0.1:0"}}

	return NewDispatcher(store, farmer, contacts, timeout, testLogger(t)), store
}

func firstItem(t *testing.T, contract model.Contract) model.QueueItem {
	t.Helper()
	challenge := decodeChallenge(t, contract.Challenges[0])
	return model.NewQueueItem(contract, 0, challenge)
}

func decodeChallenge(t *testing.T, c string) []byte {
	t.Helper()
	b, err := hexDecode(c)
	require.NoError(t, err)
	return b
}

func TestVerifyValidProof(t *testing.T) {
	farmer := newFarmerStub()
	d, _ := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 4)

	ok, err := d.Verify(context.Background(), firstItem(t, contract))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyWrongRoot(t *testing.T) {
	farmer := newFarmerStub()
	d, _ := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 4)

	other, err := GenerateChallenges([]byte("other shard"), 4)
	require.NoError(t, err)

	item := firstItem(t, contract)
	item.Root = other.Root

	ok, err := d.Verify(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTimeout(t *testing.T) {
	farmer := newFarmerStub()
	farmer.answer = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	d, _ := newTestDispatcher(t, farmer, 20*time.Millisecond)
	contract, _ := auditFixture(t, farmer, 2)

	ok, err := d.Verify(context.Background(), firstItem(t, contract))
	assert.False(t, ok)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrChallengeTimeout)
}

func TestVerifyUnknownFarmer(t *testing.T) {
	farmer := newFarmerStub()
	d, _ := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 2)

	item := firstItem(t, contract)
	item.Farmer = "nobody"

	_, err := d.Verify(context.Background(), item)
	assert.ErrorIs(t, err, ErrUnknownFarmer)
	assert.Zero(t, farmer.calls)
}

type failingContacts struct{}

func (failingContacts) Get(context.Context, string) (model.Contact, error) {
	return model.Contact{}, errors.New("leveldb: closed")
}

func TestVerifyContactLookupFailure(t *testing.T) {
	farmer := newFarmerStub()
	store := newTestStore(t)
	d := NewDispatcher(store, farmer, failingContacts{}, time.Second, testLogger(t))
	contract, _ := auditFixture(t, farmer, 2)

	_, err := d.Verify(context.Background(), firstItem(t, contract))
	require.Error(t, err)
	var verr *VerificationError
	assert.False(t, errors.As(err, &verr))
	assert.NotErrorIs(t, err, ErrUnknownFarmer)
	assert.Zero(t, farmer.calls)

	w := NewWorker(workerConfig, store, d, testLogger(t))
	require.Error(t, w.audit(context.Background(), firstItem(t, contract)))
	assert.Zero(t, length(t, store, queue.Final))
}

func TestVerifyTransportFailure(t *testing.T) {
	farmer := newFarmerStub()
	farmer.answer = func(context.Context) error { return errors.New("connection refused") }
	d, _ := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 2)

	_, err := d.Verify(context.Background(), firstItem(t, contract))
	var verr *VerificationError
	assert.ErrorAs(t, err, &verr)
}

func TestVerifyMalformedChallenge(t *testing.T) {
	farmer := newFarmerStub()
	d, _ := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 2)

	item := firstItem(t, contract)
	item.Challenge = "zz"

	_, err := d.Verify(context.Background(), item)
	assert.ErrorIs(t, err, ErrMalformedItem)
}

func TestCommitIsIdempotent(t *testing.T) {
	farmer := newFarmerStub()
	d, store := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 2)
	item := firstItem(t, contract)
	ctx := context.Background()

	require.NoError(t, d.Commit(ctx, item, true, ""))
	require.NoError(t, d.Commit(ctx, item, false, "second"))

	var records []model.AuditRecord
	for r, err := range store.Results(ctx) {
		require.NoError(t, err)
		records = append(records, r)
	}
	require.Len(t, records, 1)
	assert.True(t, records[0].Result)
	assert.Equal(t, item, records[0].Item)
}

type contractsStub struct {
	contracts []model.Contract
	next      map[string]int
}

func (c *contractsStub) ByShard(_ context.Context, hash string) ([]model.Contract, error) {
	var out []model.Contract
	for _, contract := range c.contracts {
		if contract.ShardHash == hash {
			out = append(out, contract)
		}
	}
	return out, nil
}

func (c *contractsStub) NextChallenge(_ context.Context, id string) (int, []byte, error) {
	for _, contract := range c.contracts {
		if contract.ID == id {
			i := c.next[id]
			c.next[id]++
			b, err := hexDecode(contract.Challenges[i])
			return i, b, err
		}
	}
	return 0, nil, errors.New("missing contract")
}

func TestScheduleShard(t *testing.T) {
	farmer := newFarmerStub()
	d, store := newTestDispatcher(t, farmer, time.Second)
	contract, _ := auditFixture(t, farmer, 4)
	mirror := contract.Mirror("farmer-2")
	dead := contract.Mirror("farmer-3")
	dead.Invalidated = true

	source := &contractsStub{contracts: []model.Contract{contract, mirror, dead}, next: map[string]int{}}
	ctx := context.Background()

	items, err := d.ScheduleShard(ctx, source, contract.ShardHash)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, contract.Challenges[0], items[0].Challenge)
	assert.Equal(t, "farmer-2", items[1].Farmer)

	items, err = d.ScheduleShard(ctx, source, contract.ShardHash)
	require.NoError(t, err)
	assert.Equal(t, 1, items[0].Index)

	n, err := store.Len(ctx, queue.Ready)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
