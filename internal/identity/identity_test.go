package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mintExchange/internal/model"
)

func TestClientResolve(t *testing.T) {
	var gotPath, gotKey, gotAddresses string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotAddresses = r.URL.Query().Get("addresses")
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"0xAAaa000000000000000000000000000000000001":[{"fid":3,"username":"dwr","display_name":"Dan","pfp_url":"https://img/x.png"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", time.Second)
	identities, err := client.Resolve(context.Background(), "0xAAAA000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, "/farcaster/user/bulk-by-address", gotPath)
	require.Equal(t, "secret", gotKey)
	require.Equal(t, "0xaaaa000000000000000000000000000000000001", gotAddresses)
	require.Len(t, identities, 1)
	require.Equal(t, int64(3), identities[0].FID)
	require.Equal(t, "dwr", identities[0].Username)
	require.Equal(t, "https://img/x.png", identities[0].PFPURL)
}

func TestClientNotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"No users found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	identities, err := NewClient(srv.URL, "", time.Second).Resolve(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Empty(t, identities)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Resolve(context.Background(), "0xabc")
	require.ErrorContains(t, err, "status 502")
}

type stubResolver struct {
	calls      atomic.Int32
	identities []model.Identity
	err        error
}

func (s *stubResolver) Resolve(context.Context, string) ([]model.Identity, error) {
	s.calls.Add(1)
	return s.identities, s.err
}

func TestCachedResolverCachesMisses(t *testing.T) {
	next := &stubResolver{}
	resolver, err := NewCachedResolver(next, 16, nil, time.Minute, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		identities, err := resolver.Resolve(context.Background(), "0xABC")
		require.NoError(t, err)
		require.Empty(t, identities)
	}
	require.Equal(t, int32(1), next.calls.Load())
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	next := &stubResolver{err: errors.New("timeout")}
	resolver, err := NewCachedResolver(next, 16, nil, time.Minute, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "0xabc")
	require.Error(t, err)
	_, err = resolver.Resolve(context.Background(), "0xabc")
	require.Error(t, err)
	require.Equal(t, int32(2), next.calls.Load())
}

func TestFirst(t *testing.T) {
	require.Nil(t, First(nil))
	ref := First([]model.Identity{{FID: 1, Username: "a"}, {FID: 2, Username: "b"}})
	require.Equal(t, &model.IdentityRef{FID: 1, Username: "a"}, ref)
}

type recordingUsers struct {
	mu    sync.Mutex
	users []model.User
	err   error
}

func (r *recordingUsers) UpsertUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.users = append(r.users, user)
	return nil
}

func TestProfileSyncerUpsertsResolvedProfiles(t *testing.T) {
	resolver := &stubResolver{identities: []model.Identity{{FID: 7, Username: "seller"}}}
	users := &recordingUsers{}
	syncer := NewProfileSyncer(resolver, users, 2, nil)

	require.True(t, syncer.Enqueue("0xAA"))
	require.True(t, syncer.Enqueue("0xBB"))
	require.False(t, syncer.Enqueue(""))
	syncer.Close()

	require.Len(t, users.users, 2)
	for _, user := range users.users {
		require.Equal(t, int64(7), user.Identity.FID)
		require.False(t, user.UpdatedAt.IsZero())
	}
	require.False(t, syncer.Enqueue("0xCC"))
}

func TestProfileSyncerSwallowsFailures(t *testing.T) {
	resolver := &stubResolver{identities: []model.Identity{{FID: 7}}}
	users := &recordingUsers{err: errors.New("db down")}
	syncer := NewProfileSyncer(resolver, users, 1, nil)

	require.True(t, syncer.Enqueue("0xAA"))
	syncer.Close()
	require.Empty(t, users.users)
}
