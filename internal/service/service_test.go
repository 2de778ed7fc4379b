package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	pkgredis "github.com/Gopher0727/GroupChat/internal/pkg/redis"
	"github.com/Gopher0727/GroupChat/internal/realtime"
	"github.com/Gopher0727/GroupChat/internal/repository"
	"github.com/Gopher0727/GroupChat/internal/testutil"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

type testEnv struct {
	store    *repository.Store
	redis    *miniredis.Miniredis
	bus      realtime.Bus
	events   *event.Recorder
	avatars  *fakeAvatars
	messages *MessageService
	members  *MembershipService
	invites  *InviteService
}

func newTestEnv(t *testing.T, opts ...repository.Option) *testEnv {
	t.Helper()
	return newTestEnvWithBus(t, realtime.NewLocalBus(1024, nil), opts...)
}

// newTestEnvWithBus builds the services over a fresh database. opts decorate
// the repositories, inside transactions too.
func newTestEnvWithBus(t *testing.T, bus realtime.Bus, opts ...repository.Option) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	store := repository.NewStore(db, opts...)
	rdb, mr := testutil.NewTestRedis(t)
	ids, err := snowflake.NewGenerator(1)
	require.NoError(t, err)

	env := &testEnv{
		store:   store,
		redis:   mr,
		bus:     bus,
		events:  &event.Recorder{},
		avatars: &fakeAvatars{},
	}
	env.messages = NewMessageService(store, pkgredis.Wrap(rdb), bus, env.events, ids, config.DefaultChatConfig(), nil)
	env.members = NewMembershipService(store, env.messages, env.avatars, env.events, config.DefaultChatConfig(), nil)
	env.invites = NewInviteService(store, env.messages, env.events, nil)
	return env
}

type fakeAvatars struct {
	keys []string
	err  error
}

func (f *fakeAvatars) Upload(_ context.Context, key string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) createGroup(t *testing.T, owner string, opts ...func(*CreateGroupRequest)) *model.Group {
	t.Helper()
	req := &CreateGroupRequest{Name: "Book club", Description: "Monthly reads"}
	for _, opt := range opts {
		opt(req)
	}
	g, err := e.members.CreateGroup(context.Background(), owner, req)
	require.NoError(t, err)
	return g
}

// addMembers adds active members through the owner.
func (e *testEnv) addMembers(t *testing.T, groupID, owner string, users ...string) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, e.members.AddMember(context.Background(), groupID, owner, u))
	}
}

func (e *testEnv) member(t *testing.T, groupID, userID string) *model.GroupMember {
	t.Helper()
	m, err := e.store.Members.Find(context.Background(), groupID, userID)
	if err != nil {
		return nil
	}
	return m
}

func (e *testEnv) group(t *testing.T, groupID string) *model.Group {
	t.Helper()
	g, err := e.store.Groups.FindByID(context.Background(), groupID)
	require.NoError(t, err)
	return g
}

// feed returns every live message of a group, oldest first, bypassing access
// checks.
func (e *testEnv) feed(t *testing.T, groupID string) []*model.Message {
	t.Helper()
	rows, err := e.store.Messages.ListBefore(context.Background(), model.GroupConversation(groupID).Key(), 0, 10_000)
	require.NoError(t, err)
	out := make([]*model.Message, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = m
	}
	return out
}

func (e *testEnv) lastMessage(t *testing.T, groupID string) *model.Message {
	t.Helper()
	feed := e.feed(t, groupID)
	require.NotEmpty(t, feed)
	return feed[len(feed)-1]
}

func (e *testEnv) owners(t *testing.T, groupID string) []string {
	t.Helper()
	members, err := e.store.Members.ListActiveForUpdate(context.Background(), groupID)
	require.NoError(t, err)
	var owners []string
	for _, m := range members {
		if m.Role == model.RoleOwner {
			owners = append(owners, m.UserID)
		}
	}
	return owners
}

func assertKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, errs.KindOf(err), "got %v", err)
}

var errBoom = errors.New("boom")

// racingMembers inserts a rival row for userID right before its Create,
// standing in for a concurrent join that committed after this transaction
// checked for an existing membership.
type racingMembers struct {
	repository.IMemberRepository
	userID string
}

func (r racingMembers) Create(ctx context.Context, member *model.GroupMember) error {
	if member.UserID != r.userID {
		return r.IMemberRepository.Create(ctx, member)
	}
	rival := *member
	rival.ID = uuid.NewString()
	if err := r.IMemberRepository.Create(ctx, &rival); err != nil {
		return err
	}
	return r.IMemberRepository.Create(ctx, member)
}

// staleMembers reports userID's owner row as an admin row, which is what a
// writer that read it just before a concurrent hand-over would hold.
type staleMembers struct {
	repository.IMemberRepository
	userID string
}

func (r staleMembers) Find(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	m, err := r.IMemberRepository.Find(ctx, groupID, userID)
	if err == nil && userID == r.userID && m.Role == model.RoleOwner {
		m.Role = model.RoleAdmin
	}
	return m, err
}

// racingBans records a rival ban right before each Create, as another admin
// banning the same user at the same moment would.
type racingBans struct {
	repository.IBanRepository
}

func (r racingBans) Create(ctx context.Context, ban *model.GroupBan) (bool, error) {
	rival := *ban
	rival.BannedBy = "rival"
	if _, err := r.IBanRepository.Create(ctx, &rival); err != nil {
		return false, err
	}
	return r.IBanRepository.Create(ctx, ban)
}
