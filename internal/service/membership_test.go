package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/repository"
	"github.com/Gopher0727/GroupChat/internal/testutil"
)

func TestCreateGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedProfiles(t, env.store.DB(), "alice")

	g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.Name = "  Book club  " })

	assert.Equal(t, "Book club", g.Name)
	assert.True(t, g.IsOpen, "groups are open unless asked otherwise")
	assert.Equal(t, model.GroupStatusActive, g.Status)
	assert.Equal(t, []string{"alice"}, env.owners(t, g.ID))

	msg := env.lastMessage(t, g.ID)
	assert.Equal(t, model.MessageKindSystem, msg.Kind)
	assert.Equal(t, model.EventGroupCreated, msg.Event)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Contains(t, msg.Content, "alice created the group")
	assert.Equal(t, int64(1), msg.SeqID)
	assert.Equal(t, []string{model.EventGroupCreated}, env.events.Types())

	closed := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.IsOpen = ptr(false) })
	assert.False(t, env.group(t, closed.ID).IsOpen)

	t.Run("validation", func(t *testing.T) {
		_, err := env.members.CreateGroup(ctx, "alice", &CreateGroupRequest{Name: "   "})
		assertKind(t, err, errs.KindValidation)

		_, err = env.members.CreateGroup(ctx, "alice", &CreateGroupRequest{Name: strings.Repeat("名", 51)})
		assertKind(t, err, errs.KindValidation)

		_, err = env.members.CreateGroup(ctx, "alice", &CreateGroupRequest{Name: strings.Repeat("名", 50)})
		assert.NoError(t, err, "length is counted in characters")

		_, err = env.members.CreateGroup(ctx, "alice", &CreateGroupRequest{Name: "ok", Description: strings.Repeat("d", 201)})
		assertKind(t, err, errs.KindValidation)
	})
}

func TestAddMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")

	require.NoError(t, env.members.AddMember(ctx, g.ID, "alice", "bob"))
	bob := env.member(t, g.ID, "bob")
	require.NotNil(t, bob)
	assert.Equal(t, model.RoleMember, bob.Role)
	assert.Equal(t, model.MemberStatusActive, bob.Status)

	msg := env.lastMessage(t, g.ID)
	assert.Equal(t, model.EventMemberAdded, msg.Event)
	assert.Equal(t, "alice added bob", msg.Content)

	t.Run("already member", func(t *testing.T) {
		err := env.members.AddMember(ctx, g.ID, "alice", "bob")
		assertKind(t, err, errs.KindAlreadyMember)
	})

	t.Run("members cannot add", func(t *testing.T) {
		err := env.members.AddMember(ctx, g.ID, "bob", "carol")
		assertKind(t, err, errs.KindPermissionDenied)
		assert.Nil(t, env.member(t, g.ID, "carol"))
	})

	t.Run("banned users cannot be added", func(t *testing.T) {
		require.NoError(t, env.members.Remove(ctx, g.ID, "alice", "mallory", &RemoveMemberRequest{Ban: true}))
		err := env.members.AddMember(ctx, g.ID, "alice", "mallory")
		assertKind(t, err, errs.KindAlreadyBanned)
	})

	t.Run("missing group", func(t *testing.T) {
		err := env.members.AddMember(ctx, "nope", "alice", "dave")
		assertKind(t, err, errs.KindNotFound)
	})

	t.Run("failed add leaves no system message", func(t *testing.T) {
		before := len(env.feed(t, g.ID))
		_ = env.members.AddMember(ctx, g.ID, "alice", "bob")
		assert.Len(t, env.feed(t, g.ID), before)
	})
}

func TestAddMemberLosesInsertRace(t *testing.T) {
	env := newTestEnv(t, func(s *repository.Store) {
		s.Members = racingMembers{IMemberRepository: s.Members, userID: "bob"}
	})
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	before := len(env.feed(t, g.ID))

	err := env.members.AddMember(ctx, g.ID, "alice", "bob")
	assertKind(t, err, errs.KindAlreadyMember)
	assert.Len(t, env.feed(t, g.ID), before)
	assert.NotContains(t, env.events.Types(), model.EventMemberAdded)
}

func TestPromoteDemote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.RequireApproval = true })
	env.addMembers(t, g.ID, "alice", "bob", "carol")

	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))
	assert.Equal(t, model.RoleAdmin, env.member(t, g.ID, "bob").Role)
	assert.Equal(t, "bob is now an admin", env.lastMessage(t, g.ID).Content)

	t.Run("no-op promotion is silent", func(t *testing.T) {
		before := len(env.feed(t, g.ID))
		require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))
		assert.Len(t, env.feed(t, g.ID), before)
	})

	t.Run("admins manage members", func(t *testing.T) {
		require.NoError(t, env.members.Promote(ctx, g.ID, "bob", "carol"))
		require.NoError(t, env.members.Demote(ctx, g.ID, "bob", "carol"))
		assert.Equal(t, model.RoleMember, env.member(t, g.ID, "carol").Role)
		assert.Equal(t, model.EventMemberDemoted, env.lastMessage(t, g.ID).Event)
	})

	t.Run("owner cannot be demoted", func(t *testing.T) {
		err := env.members.Demote(ctx, g.ID, "bob", "alice")
		assertKind(t, err, errs.KindInvalidTarget)
		assert.Equal(t, model.RoleOwner, env.member(t, g.ID, "alice").Role)
	})

	t.Run("pending members cannot be promoted", func(t *testing.T) {
		code, err := env.invites.Generate(ctx, g.ID, "alice")
		require.NoError(t, err)
		_, err = env.invites.Join(ctx, code, "dave")
		require.NoError(t, err)

		err = env.members.Promote(ctx, g.ID, "alice", "dave")
		assertKind(t, err, errs.KindInvalidTarget)
	})

	t.Run("unknown target", func(t *testing.T) {
		err := env.members.Promote(ctx, g.ID, "alice", "nobody")
		assertKind(t, err, errs.KindNotFound)
	})

	t.Run("members cannot promote", func(t *testing.T) {
		err := env.members.Promote(ctx, g.ID, "carol", "carol")
		assertKind(t, err, errs.KindPermissionDenied)
	})
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob", "carol")
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))

	t.Run("owner cannot be removed", func(t *testing.T) {
		err := env.members.Remove(ctx, g.ID, "bob", "alice", nil)
		assertKind(t, err, errs.KindInvalidTarget)
	})

	t.Run("owner target is reported before permission", func(t *testing.T) {
		err := env.members.Remove(ctx, g.ID, "carol", "alice", nil)
		assertKind(t, err, errs.KindInvalidTarget)
	})

	t.Run("members cannot remove", func(t *testing.T) {
		err := env.members.Remove(ctx, g.ID, "carol", "bob", nil)
		assertKind(t, err, errs.KindPermissionDenied)
	})

	t.Run("self removal", func(t *testing.T) {
		err := env.members.Remove(ctx, g.ID, "bob", "bob", nil)
		assertKind(t, err, errs.KindInvalidTarget)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, env.members.Remove(ctx, g.ID, "bob", "carol", nil))
		assert.Nil(t, env.member(t, g.ID, "carol"))
		assert.Equal(t, "bob removed carol", env.lastMessage(t, g.ID).Content)

		err := env.members.Remove(ctx, g.ID, "bob", "carol", nil)
		assertKind(t, err, errs.KindNotFound)
	})

	t.Run("ban without membership", func(t *testing.T) {
		require.NoError(t, env.members.Remove(ctx, g.ID, "alice", "eve", &RemoveMemberRequest{Ban: true, Reason: "spam"}))
		banned, err := env.store.Bans.Exists(ctx, g.ID, "eve")
		require.NoError(t, err)
		assert.True(t, banned)
		assert.Equal(t, model.EventMemberBanned, env.lastMessage(t, g.ID).Event)

		before := len(env.feed(t, g.ID))
		require.NoError(t, env.members.Remove(ctx, g.ID, "alice", "eve", &RemoveMemberRequest{Ban: true}))
		assert.Len(t, env.feed(t, g.ID), before, "re-banning is a silent no-op")

		bans, err := env.members.ListBans(ctx, g.ID, "bob")
		require.NoError(t, err)
		require.Len(t, bans, 1)
		assert.Equal(t, "spam", bans[0].Reason)
	})

	t.Run("unban", func(t *testing.T) {
		require.NoError(t, env.members.Unban(ctx, g.ID, "alice", "eve"))
		assertKind(t, env.members.Unban(ctx, g.ID, "alice", "eve"), errs.KindNotFound)
		require.NoError(t, env.members.AddMember(ctx, g.ID, "alice", "eve"))
	})

	t.Run("reason length", func(t *testing.T) {
		err := env.members.Remove(ctx, g.ID, "alice", "eve", &RemoveMemberRequest{Ban: true, Reason: strings.Repeat("r", 256)})
		assertKind(t, err, errs.KindValidation)
	})
}

func TestConcurrentBanIsAnnouncedOnce(t *testing.T) {
	env := newTestEnv(t, func(s *repository.Store) {
		s.Bans = racingBans{IBanRepository: s.Bans}
	})
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob")

	require.NoError(t, env.members.Remove(ctx, g.ID, "alice", "bob", &RemoveMemberRequest{Ban: true, Reason: "spam"}))
	assert.Nil(t, env.member(t, g.ID, "bob"))

	// the rival ban won the insert, so this call only reports the removal
	for _, m := range env.feed(t, g.ID) {
		assert.NotEqual(t, model.EventMemberBanned, m.Event)
	}
	assert.Equal(t, model.EventMemberRemoved, env.lastMessage(t, g.ID).Event)
	assert.NotContains(t, env.events.Types(), model.EventMemberBanned)

	bans, err := env.store.Bans.ListByGroup(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "rival", bans[0].BannedBy)
}

func TestSearchCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedProfiles(t, env.store.DB(), "alice", "bob", "bobby", "carol")
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob", "carol")
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))

	found, err := env.members.SearchCandidates(ctx, g.ID, "bob", &SearchCandidatesRequest{Query: " BO "})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bobby", found[0].UserID)

	t.Run("at most ten", func(t *testing.T) {
		for i := range 12 {
			testutil.SeedProfiles(t, env.store.DB(), fmt.Sprintf("reader%02d", i))
		}
		found, err := env.members.SearchCandidates(ctx, g.ID, "alice", &SearchCandidatesRequest{Query: "reader"})
		require.NoError(t, err)
		assert.Len(t, found, 10)
	})

	t.Run("members cannot search", func(t *testing.T) {
		_, err := env.members.SearchCandidates(ctx, g.ID, "carol", &SearchCandidatesRequest{Query: "bo"})
		assertKind(t, err, errs.KindPermissionDenied)
	})

	t.Run("blank query", func(t *testing.T) {
		_, err := env.members.SearchCandidates(ctx, g.ID, "alice", &SearchCandidatesRequest{Query: "   "})
		assertKind(t, err, errs.KindValidation)
		_, err = env.members.SearchCandidates(ctx, g.ID, "alice", &SearchCandidatesRequest{})
		assertKind(t, err, errs.KindValidation)
	})
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("owner hands over to the earliest admin", func(t *testing.T) {
		env := newTestEnv(t)
		g := env.createGroup(t, "alice")
		env.addMembers(t, g.ID, "alice", "bob", "carol", "dave")
		require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "dave"))
		require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "carol"))

		require.NoError(t, env.members.Leave(ctx, g.ID, "alice"))

		assert.Nil(t, env.member(t, g.ID, "alice"))
		assert.Equal(t, []string{"carol"}, env.owners(t, g.ID), "carol joined before dave")
		msg := env.lastMessage(t, g.ID)
		assert.Equal(t, model.EventMemberLeft, msg.Event)
		assert.Equal(t, "alice left the group. carol is now the owner", msg.Content)
	})

	t.Run("owner hands over to the earliest member without admins", func(t *testing.T) {
		env := newTestEnv(t)
		g := env.createGroup(t, "alice")
		env.addMembers(t, g.ID, "alice", "bob", "carol")

		require.NoError(t, env.members.Leave(ctx, g.ID, "alice"))
		assert.Equal(t, []string{"bob"}, env.owners(t, g.ID))
		assert.Equal(t, model.GroupStatusActive, env.group(t, g.ID).Status)
	})

	t.Run("sole owner retires the group", func(t *testing.T) {
		env := newTestEnv(t)
		g := env.createGroup(t, "alice")
		_, err := env.invites.Generate(ctx, g.ID, "alice")
		require.NoError(t, err)

		require.NoError(t, env.members.Leave(ctx, g.ID, "alice"))

		got := env.group(t, g.ID)
		assert.Equal(t, model.GroupStatusDeleted, got.Status)
		assert.Nil(t, got.InviteCode)
		assert.Empty(t, env.owners(t, g.ID))
		assert.Contains(t, env.events.Types(), event.TypeGroupDeleted)

		_, err = env.members.GetGroup(ctx, g.ID, "alice")
		assertKind(t, err, errs.KindNotFound)
	})

	t.Run("member leaves", func(t *testing.T) {
		env := newTestEnv(t)
		g := env.createGroup(t, "alice")
		env.addMembers(t, g.ID, "alice", "bob")

		require.NoError(t, env.members.Leave(ctx, g.ID, "bob"))
		assert.Nil(t, env.member(t, g.ID, "bob"))
		assert.Equal(t, []string{"alice"}, env.owners(t, g.ID))
		assert.Equal(t, "bob left the group", env.lastMessage(t, g.ID).Content)

		assertKind(t, env.members.Leave(ctx, g.ID, "bob"), errs.KindNotFound)
	})

	t.Run("pending requester withdraws", func(t *testing.T) {
		env := newTestEnv(t)
		g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.RequireApproval = true })
		code, err := env.invites.Generate(ctx, g.ID, "alice")
		require.NoError(t, err)
		_, err = env.invites.Join(ctx, code, "bob")
		require.NoError(t, err)

		before := len(env.feed(t, g.ID))
		require.NoError(t, env.members.Leave(ctx, g.ID, "bob"))
		assert.Nil(t, env.member(t, g.ID, "bob"))
		assert.Len(t, env.feed(t, g.ID), before)
	})
}

func TestApproveReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.RequireApproval = true })
	code, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)
	for _, u := range []string{"bob", "carol"} {
		_, err := env.invites.Join(ctx, code, u)
		require.NoError(t, err)
	}

	pending, err := env.members.ListPending(ctx, g.ID, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "bob", pending[0].UserID)

	t.Run("pending members have no rights", func(t *testing.T) {
		err := env.members.Approve(ctx, g.ID, "bob", "carol")
		assertKind(t, err, errs.KindPermissionDenied)
		_, err = env.messages.Send(ctx, model.GroupConversation(g.ID), "bob", &SendMessageRequest{Content: "hi"})
		assertKind(t, err, errs.KindPermissionDenied)
	})

	t.Run("approve twice", func(t *testing.T) {
		require.NoError(t, env.members.Approve(ctx, g.ID, "alice", "bob"))
		assert.Equal(t, model.MemberStatusActive, env.member(t, g.ID, "bob").Status)
		msg := env.lastMessage(t, g.ID)
		assert.Equal(t, model.EventMemberJoined, msg.Event)
		assert.Equal(t, "alice", msg.SenderID)

		err := env.members.Approve(ctx, g.ID, "alice", "bob")
		assertKind(t, err, errs.KindNotPending)
	})

	t.Run("reject", func(t *testing.T) {
		before := len(env.feed(t, g.ID))
		require.NoError(t, env.members.Reject(ctx, g.ID, "alice", "carol"))
		assert.Nil(t, env.member(t, g.ID, "carol"))
		assert.Len(t, env.feed(t, g.ID), before, "rejections are not announced")

		assertKind(t, env.members.Reject(ctx, g.ID, "alice", "carol"), errs.KindNotFound)
		assertKind(t, env.members.Reject(ctx, g.ID, "alice", "bob"), errs.KindNotPending)
	})

	t.Run("members cannot list requests", func(t *testing.T) {
		_, err := env.members.ListPending(ctx, g.ID, "bob")
		assertKind(t, err, errs.KindPermissionDenied)
	})
}

func TestUpdateInfoAndSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob")

	updated, err := env.members.UpdateInfo(ctx, g.ID, "bob", &UpdateGroupInfoRequest{Name: "Poetry", Description: ""})
	require.NoError(t, err)
	assert.Equal(t, "Poetry", updated.Name)
	assert.Empty(t, updated.Description)
	assert.Equal(t, model.EventGroupUpdated, env.lastMessage(t, g.ID).Event)

	_, err = env.members.UpdateSettings(ctx, g.ID, "bob", &UpdateGroupSettingsRequest{AdminOnlyEdit: ptr(true)})
	assertKind(t, err, errs.KindPermissionDenied)

	settings, err := env.members.UpdateSettings(ctx, g.ID, "alice", &UpdateGroupSettingsRequest{
		AdminOnlyEdit: ptr(true),
		IsOpen:        ptr(false),
	})
	require.NoError(t, err)
	assert.True(t, settings.AdminOnlyEdit)
	assert.False(t, settings.IsOpen)
	assert.False(t, settings.RequireApproval)

	_, err = env.members.UpdateInfo(ctx, g.ID, "bob", &UpdateGroupInfoRequest{Name: "Prose"})
	assertKind(t, err, errs.KindPermissionDenied)

	_, err = env.members.UpdateSettings(ctx, g.ID, "alice", &UpdateGroupSettingsRequest{})
	assertKind(t, err, errs.KindValidation)

	_, err = env.members.UpdateInfo(ctx, g.ID, "alice", &UpdateGroupInfoRequest{Name: ""})
	assertKind(t, err, errs.KindValidation)
}

func TestSetAvatar(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.AdminOnlyEdit = true })
	env.addMembers(t, g.ID, "alice", "bob")

	updated, err := env.members.SetAvatar(ctx, g.ID, "alice", "me.png", strings.NewReader("png"))
	require.NoError(t, err)
	require.Len(t, env.avatars.keys, 1)
	assert.True(t, strings.HasPrefix(env.avatars.keys[0], "groups/"+g.ID+"/avatar-"))
	assert.True(t, strings.HasSuffix(env.avatars.keys[0], ".png"))
	assert.Equal(t, "https://cdn.example.com/"+env.avatars.keys[0], updated.AvatarURL)

	_, err = env.members.SetAvatar(ctx, g.ID, "bob", "x.png", strings.NewReader("png"))
	assertKind(t, err, errs.KindPermissionDenied)
	assert.Len(t, env.avatars.keys, 1, "denied uploads never reach storage")

	env.avatars.err = errBoom
	_, err = env.members.SetAvatar(ctx, g.ID, "alice", "me.png", strings.NewReader("png"))
	assertKind(t, err, errs.KindUnavailable)
}

func TestDeleteGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob")
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))

	assertKind(t, env.members.DeleteGroup(ctx, g.ID, "bob"), errs.KindPermissionDenied)
	require.NoError(t, env.members.DeleteGroup(ctx, g.ID, "alice"))

	_, err := env.members.GetGroup(ctx, g.ID, "alice")
	assertKind(t, err, errs.KindNotFound)
	_, err = env.messages.Send(ctx, model.GroupConversation(g.ID), "alice", &SendMessageRequest{Content: "hello?"})
	assertKind(t, err, errs.KindNotFound)
}

func TestGetGroupAndMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedProfiles(t, env.store.DB(), "alice", "bob")
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob", "carol", "dave")
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "dave"))
	_, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)

	asOwner, err := env.members.GetGroup(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.NotNil(t, asOwner.InviteCode)

	asMember, err := env.members.GetGroup(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, asMember.InviteCode, "only managers see the invite code")

	_, err = env.members.GetGroup(ctx, g.ID, "stranger")
	assertKind(t, err, errs.KindPermissionDenied)

	roster, err := env.members.ListMembers(ctx, g.ID, "bob")
	require.NoError(t, err)
	var order []string
	for _, m := range roster {
		order = append(order, m.UserID)
	}
	assert.Equal(t, []string{"alice", "dave", "bob", "carol"}, order)
	assert.Equal(t, "alice", roster[0].Username)
}

func TestListUserGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.Name = "first" })
	second := env.createGroup(t, "bob", func(r *CreateGroupRequest) { r.Name = "second" })
	env.addMembers(t, second.ID, "bob", "alice", "carol")
	gone := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.Name = "gone" })
	require.NoError(t, env.members.DeleteGroup(ctx, gone.ID, "alice"))

	_, err := env.messages.Send(ctx, model.GroupConversation(first.ID), "alice", &SendMessageRequest{Content: "latest"})
	require.NoError(t, err)

	summaries, err := env.members.ListUserGroups(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, first.ID, summaries[0].Group.ID, "most recent activity first")
	assert.Equal(t, model.RoleOwner, summaries[0].Role)
	assert.Equal(t, int64(1), summaries[0].MemberCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "latest", summaries[0].LastMessage.Content)

	assert.Equal(t, second.ID, summaries[1].Group.ID)
	assert.Equal(t, model.RoleMember, summaries[1].Role)
	assert.Equal(t, int64(3), summaries[1].MemberCount)

	empty, err := env.members.ListUserGroups(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
