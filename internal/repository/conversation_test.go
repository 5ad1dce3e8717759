package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

func TestResolveDedupIgnoresOrder(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id1, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	id2, err := r.convs.Resolve(ctx, []string{"user-2", "user-1"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	convs, err := storage.Load[model.Conversation](ctx, r.store, storage.Conversations)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestResolveDirectConversation(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)

	c, err := r.convs.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Bob Smith", c.Name)
	require.Equal(t, model.UserAvatar, c.Avatar)
	require.Equal(t, []string{"user-1", "user-2"}, c.Participants)
	require.Equal(t, "", c.LastMessage)
	require.Equal(t, model.LastSeenJustNow, c.LastSeen)
	require.Zero(t, c.UnreadCount)
	require.False(t, c.IsGroup)
}

func TestResolveGroup(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id, err := r.convs.Resolve(ctx, []string{"user-3", "user-1", "user-2"})
	require.NoError(t, err)
	c, err := r.convs.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, c.IsGroup)
	// Первый в порядке users, кроме инициатора user-3.
	require.Equal(t, "Alice Johnson", c.Name)

	same, err := r.convs.Resolve(ctx, []string{"user-1", "user-2", "user-3"})
	require.NoError(t, err)
	require.Equal(t, id, same)

	direct, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	require.NotEqual(t, id, direct)
}

func TestResolveUnknownOther(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id, err := r.convs.Resolve(ctx, []string{"user-1", "ghost"})
	require.NoError(t, err)
	c, err := r.convs.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.UnknownUserName, c.Name)
	require.Equal(t, model.DefaultAvatar, c.Avatar)
}

func TestResolveInvalidParticipants(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	for _, ids := range [][]string{nil, {"user-1"}, {"user-1", "user-1"}, {"user-1", ""}} {
		_, err := r.convs.Resolve(ctx, ids)
		require.ErrorIs(t, err, ErrInvalidParticipants, "ids=%v", ids)
	}
	require.Nil(t, r.store.Blob(storage.Conversations))
}

func TestResolveDuplicateIDsCollapsed(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id, err := r.convs.Resolve(ctx, []string{"user-1", "user-2", "user-2"})
	require.NoError(t, err)
	c, err := r.convs.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"user-1", "user-2"}, c.Participants)
	require.False(t, c.IsGroup)
}

func TestListForUserScopesAndDerivesNames(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	ab, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	bc, err := r.convs.Resolve(ctx, []string{"user-2", "user-3"})
	require.NoError(t, err)
	ac, err := r.convs.Resolve(ctx, []string{"user-1", "user-3"})
	require.NoError(t, err)

	alice, err := r.convs.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	require.Equal(t, ab, alice[0].ID)
	require.Equal(t, "Bob Smith", alice[0].Name)
	require.Equal(t, ac, alice[1].ID)
	require.Equal(t, "Carol Davis", alice[1].Name)

	bob, err := r.convs.ListForUser(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, bob, 2)
	require.Equal(t, ab, bob[0].ID)
	require.Equal(t, "Alice Johnson", bob[0].Name)
	require.Equal(t, bc, bob[1].ID)

	none, err := r.convs.ListForUser(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRenameVisibleInDirectConversation(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	_, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	_, err = r.users.UpdateProfile(ctx, "user-2", "Bobby", "/bobby.png")
	require.NoError(t, err)

	convs, err := r.convs.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "Bobby", convs[0].Name)
	require.Equal(t, "/bobby.png", convs[0].Avatar)
}

func TestUpdateSummary(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	id, err := r.convs.Resolve(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)

	found, err := r.convs.UpdateSummary(ctx, id, "hello")
	require.NoError(t, err)
	require.True(t, found)
	c, err := r.convs.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", c.LastMessage)

	before := r.store.Blob(storage.Conversations)
	found, err = r.convs.UpdateSummary(ctx, "conv-missing", "x")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, before, r.store.Blob(storage.Conversations))
}

func TestDeriveDisplay(t *testing.T) {
	users := DefaultSeed()

	direct := model.Conversation{Name: "stored", Avatar: "/stored.png", Participants: []string{"user-1", "user-2"}}
	name, avatar := DeriveDisplay(direct, users, "user-1")
	require.Equal(t, "Bob Smith", name)
	require.Equal(t, model.UserAvatar, avatar)
	name, _ = DeriveDisplay(direct, users, "user-2")
	require.Equal(t, "Alice Johnson", name)

	group := model.Conversation{Name: "Team", Avatar: "/team.png", Participants: []string{"user-1", "user-2", "user-3"}, IsGroup: true}
	name, avatar = DeriveDisplay(group, users, "user-1")
	require.Equal(t, "Team", name)
	require.Equal(t, "/team.png", avatar)

	orphan := model.Conversation{Name: "stored", Avatar: "/stored.png", Participants: []string{"user-1", "ghost"}}
	name, avatar = DeriveDisplay(orphan, users, "user-1")
	require.Equal(t, "stored", name)
	require.Equal(t, "/stored.png", avatar)

	// Без побочных эффектов.
	require.Equal(t, "stored", direct.Name)
	require.Equal(t, "Alice Johnson", users[0].Name)
}

func TestConcurrentResolveCreatesOneConversation(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	convs := NewConversationRepository(slowStore{CollectionStore: r.store, delay: 2 * time.Millisecond})

	orders := [][]string{{"user-1", "user-3"}, {"user-3", "user-1"}, {"user-1", "user-3"}, {"user-3", "user-1"}}
	ids := make([]string, len(orders))
	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, order := range orders {
		wg.Add(1)
		go func(i int, order []string) {
			defer wg.Done()
			ids[i], errs[i] = convs.Resolve(ctx, order)
		}(i, order)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, id := range ids[1:] {
		require.Equal(t, ids[0], id)
	}
	stored, err := storage.Load[model.Conversation](ctx, r.store, storage.Conversations)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, ids[0], stored[0].ID)
}
