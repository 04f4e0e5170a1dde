package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, address string) ([]byte, error) {
	args := m.Called(ctx, address)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

// MockParser is a mock implementation of the Parser interface.
type MockParser struct {
	mock.Mock
}

func (m *MockParser) ParseDetail(raw []byte) (ListingRecord, error) {
	args := m.Called(raw)
	return args.Get(0).(ListingRecord), args.Error(1)
}

func (m *MockParser) ParseResults(raw []byte) (ResultPage, error) {
	args := m.Called(raw)
	return args.Get(0).(ResultPage), args.Error(1)
}

// MockResolver is a mock implementation of the Resolver interface. It runs the commit
// hook the way a real transaction would.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(
	ctx context.Context,
	rec ListingRecord,
	source URL,
	onCommit func(context.Context, Repositories) error,
) (Resolution, error) {
	args := m.Called(ctx, rec, source)
	if err := args.Error(1); err != nil {
		return Resolution{}, err
	}
	if onCommit != nil {
		if err := onCommit(ctx, nil); err != nil {
			return Resolution{}, err
		}
	}
	return args.Get(0).(Resolution), nil
}

// MockArchive is a mock implementation of the Archive interface.
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Put(ctx context.Context, address string, raw []byte) (string, error) {
	args := m.Called(ctx, address, raw)
	return args.String(0), args.Error(1)
}

// fakeFrontier is a slice-backed Frontier.
type fakeFrontier struct {
	pending      []URL
	enumerated   []string
	enumerateErr error
	recovered    bool
	marked       []int64
	loadErr      error
}

func (f *fakeFrontier) Enumerate(_ context.Context, seed string, _ int) (int, error) {
	f.enumerated = append(f.enumerated, seed)
	return len(f.pending), f.enumerateErr
}

func (f *fakeFrontier) Recover(ctx context.Context) (int, error) {
	f.recovered = true
	return f.Load(ctx)
}

func (f *fakeFrontier) Load(context.Context) (int, error) {
	return len(f.pending), f.loadErr
}

func (f *fakeFrontier) Pop() (URL, bool) {
	if len(f.pending) == 0 {
		return URL{}, false
	}
	u := f.pending[0]
	f.pending = f.pending[1:]
	return u, true
}

func (f *fakeFrontier) Len() int { return len(f.pending) }

func (f *fakeFrontier) MarkProcessed(_ context.Context, _ Repositories, u *URL) error {
	f.marked = append(f.marked, u.ID)
	u.Processed = true
	return nil
}

func urls(addrs ...string) []URL {
	out := make([]URL, len(addrs))
	for i, a := range addrs {
		out[i] = URL{ID: int64(i + 1), Address: a}
	}
	return out
}

func TestRunRequiresSeeds(t *testing.T) {
	e := NewEngine(&fakeFrontier{}, &MockFetcher{}, &MockParser{}, &MockResolver{}, nil, nil)
	_, err := e.Run(context.Background(), RunOptions{Seeds: []string{"  "}})
	require.Error(t, err)
	assert.Equal(t, StateAborted, e.State())
}

func TestRunDrainsAndSkipsItemErrors(t *testing.T) {
	ctx := context.Background()
	frontier := &fakeFrontier{pending: urls(
		"https://www.hemnet.se/salda/ok",
		"https://www.hemnet.se/salda/forbidden",
		"https://www.hemnet.se/salda/broken",
		"https://www.hemnet.se/salda/down",
	)}
	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "https://www.hemnet.se/salda/ok").Return([]byte("ok"), nil)
	fetcher.On("Fetch", mock.Anything, "https://www.hemnet.se/salda/forbidden").Return(nil, ErrPermissionDenied)
	fetcher.On("Fetch", mock.Anything, "https://www.hemnet.se/salda/broken").Return([]byte("broken"), nil)
	fetcher.On("Fetch", mock.Anything, "https://www.hemnet.se/salda/down").Return(nil, ErrNetwork)

	rec := ListingRecord{Address: "Storgatan 1"}
	parser := &MockParser{}
	parser.On("ParseDetail", []byte("ok")).Return(rec, nil)
	parser.On("ParseDetail", []byte("broken")).Return(ListingRecord{}, ErrMalformedPage)

	resolver := &MockResolver{}
	resolver.On("Resolve", mock.Anything, rec, mock.MatchedBy(func(u URL) bool { return u.ID == 1 })).
		Return(Resolution{}, nil).Once()

	archive := &MockArchive{}
	archive.On("Put", mock.Anything, mock.Anything, mock.Anything).Return("memory://x", nil)

	e := NewEngine(frontier, fetcher, parser, resolver, archive, nil)
	stats, err := e.Run(ctx, RunOptions{Seeds: []string{"https://www.hemnet.se/salda/bostader?q=1"}, MaxPages: 1})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, map[string]int{"permission_denied": 1, "malformed_page": 1, "network": 1}, stats.Skipped)
	assert.Equal(t, []int64{1}, frontier.marked, "only the resolved url is marked")
	assert.Equal(t, []string{"https://www.hemnet.se/salda/bostader?q=1"}, frontier.enumerated)
	resolver.AssertExpectations(t)
	archive.AssertNumberOfCalls(t, "Put", 2)
}

func TestRunAbortsOnStorageError(t *testing.T) {
	frontier := &fakeFrontier{pending: urls("https://www.hemnet.se/salda/1", "https://www.hemnet.se/salda/2")}
	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return([]byte("page"), nil)
	parser := &MockParser{}
	parser.On("ParseDetail", mock.Anything).Return(ListingRecord{Address: "Storgatan 1"}, nil)
	resolver := &MockResolver{}
	resolver.On("Resolve", mock.Anything, mock.Anything, mock.Anything).
		Return(Resolution{}, errors.Join(ErrStorage, errors.New("connection reset")))

	e := NewEngine(frontier, fetcher, parser, resolver, nil, nil)
	_, err := e.Run(context.Background(), RunOptions{Seeds: []string{"seed"}, MaxPages: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, StateAborted, e.State())
	assert.Equal(t, 1, frontier.Len(), "the run stops pulling work")
	assert.Empty(t, frontier.marked)
}

func TestRunAbortsWhenEnumerationCannotPersist(t *testing.T) {
	frontier := &fakeFrontier{enumerateErr: ErrStorage}
	e := NewEngine(frontier, &MockFetcher{}, &MockParser{}, &MockResolver{}, nil, nil)
	_, err := e.Run(context.Background(), RunOptions{Seeds: []string{"seed"}, MaxPages: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, StateAborted, e.State())
}

func TestRunRecoverySkipsEnumeration(t *testing.T) {
	frontier := &fakeFrontier{pending: urls("local/page.html")}
	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, "local/page.html").Return([]byte("page"), nil)
	parser := &MockParser{}
	parser.On("ParseDetail", []byte("page")).Return(ListingRecord{Address: "Storgatan 1"}, nil)
	resolver := &MockResolver{}
	resolver.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(Resolution{}, nil)
	archive := &MockArchive{}

	e := NewEngine(frontier, fetcher, parser, resolver, archive, nil)
	stats, err := e.Run(context.Background(), RunOptions{Recover: true})
	require.NoError(t, err)
	assert.True(t, frontier.recovered)
	assert.Empty(t, frontier.enumerated)
	assert.Equal(t, 1, stats.Processed)
	archive.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStopsPullingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frontier := &fakeFrontier{pending: urls("https://www.hemnet.se/salda/1")}
	fetcher := &MockFetcher{}

	e := NewEngine(frontier, fetcher, &MockParser{}, &MockResolver{}, nil, nil)
	_, err := e.Run(ctx, RunOptions{Recover: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	assert.Equal(t, 1, frontier.Len())
}
