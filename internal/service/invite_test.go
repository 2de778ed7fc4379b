package service

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/repository"
)

func TestInviteJoinAndBan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")

	code, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(code)
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	preview, err := env.invites.Resolve(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, g.ID, preview.ID)
	assert.Equal(t, "Book club", preview.Name)
	assert.Equal(t, int64(1), preview.MemberCount)

	member, err := env.invites.Join(ctx, code, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.MemberStatusActive, member.Status)
	assert.Equal(t, model.RoleMember, member.Role)

	msg := env.lastMessage(t, g.ID)
	assert.Equal(t, model.EventMemberJoined, msg.Event)
	assert.Equal(t, "bob joined via invite link", msg.Content)
	assert.Equal(t, "bob", msg.SenderID)

	_, err = env.invites.Join(ctx, code, "bob")
	assertKind(t, err, errs.KindAlreadyMember)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, g.ID, e.ID)

	require.NoError(t, env.members.Remove(ctx, g.ID, "alice", "bob", &RemoveMemberRequest{Ban: true}))
	assert.Equal(t, "alice banned bob", env.lastMessage(t, g.ID).Content)

	_, err = env.invites.Join(ctx, code, "bob")
	assertKind(t, err, errs.KindBanned)
	assert.Nil(t, env.member(t, g.ID, "bob"))

	require.NoError(t, env.members.Unban(ctx, g.ID, "alice", "bob"))
	_, err = env.invites.Join(ctx, code, "bob")
	require.NoError(t, err)
}

func TestJoinLosesInsertRace(t *testing.T) {
	env := newTestEnv(t, func(s *repository.Store) {
		s.Members = racingMembers{IMemberRepository: s.Members, userID: "bob"}
	})
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	code, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)
	before := len(env.feed(t, g.ID))

	_, err = env.invites.Join(ctx, code, "bob")
	assertKind(t, err, errs.KindAlreadyMember)
	assert.Len(t, env.feed(t, g.ID), before, "the losing join leaves no system message")
}

func TestInviteRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob")

	first, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)
	second, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = env.invites.Resolve(ctx, first)
	assertKind(t, err, errs.KindNotFound)
	_, err = env.invites.Join(ctx, first, "carol")
	assertKind(t, err, errs.KindNotFound)

	_, err = env.invites.Generate(ctx, g.ID, "bob")
	assertKind(t, err, errs.KindPermissionDenied)
	assertKind(t, env.invites.Revoke(ctx, g.ID, "bob"), errs.KindPermissionDenied)

	require.NoError(t, env.invites.Revoke(ctx, g.ID, "alice"))
	assert.Nil(t, env.group(t, g.ID).InviteCode)
	_, err = env.invites.Join(ctx, second, "carol")
	assertKind(t, err, errs.KindNotFound)

	_, err = env.invites.Resolve(ctx, "")
	assertKind(t, err, errs.KindNotFound)

	types := env.events.Types()
	assert.Contains(t, types, event.TypeInviteRotated)
	assert.Contains(t, types, event.TypeInviteRevoked)
}

func TestInviteCodeCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	taken := env.createGroup(t, "alice")
	g := env.createGroup(t, "bob")

	codes := []string{"taken-code", "taken-code", "fresh-code"}
	env.invites.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	code, err := env.invites.Generate(ctx, taken.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "taken-code", code)

	code, err = env.invites.Generate(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "fresh-code", code)
	assert.Empty(t, codes)

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		env.invites.newCode = func() (string, error) {
			calls++
			return "taken-code", nil
		}
		_, err := env.invites.Generate(ctx, g.ID, "bob")
		assertKind(t, err, errs.KindUnavailable)
		assert.Equal(t, inviteCodeAttempts, calls)

		current := env.group(t, g.ID).InviteCode
		require.NotNil(t, current)
		assert.Equal(t, "fresh-code", *current, "a failed rotation keeps the old code")
	})

	t.Run("entropy failure", func(t *testing.T) {
		env.invites.newCode = func() (string, error) { return "", errBoom }
		_, err := env.invites.Generate(ctx, g.ID, "bob")
		assertKind(t, err, errs.KindUnavailable)
	})
}

func TestInviteRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice", func(r *CreateGroupRequest) { r.RequireApproval = true })
	code, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)

	preview, err := env.invites.Resolve(ctx, code)
	require.NoError(t, err)
	assert.True(t, preview.RequireApproval)

	before := len(env.feed(t, g.ID))
	member, err := env.invites.Join(ctx, code, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.MemberStatusPending, member.Status)
	assert.Len(t, env.feed(t, g.ID), before, "requests are not announced")
	assert.Contains(t, env.events.Types(), event.TypeMemberRequested)

	_, err = env.invites.Join(ctx, code, "bob")
	assertKind(t, err, errs.KindAlreadyMember)

	preview, err = env.invites.Resolve(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), preview.MemberCount, "pending requests do not count")

	require.NoError(t, env.members.Approve(ctx, g.ID, "alice", "bob"))
	assert.Equal(t, "bob joined the group", env.lastMessage(t, g.ID).Content)
}

func TestInviteForDeletedGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	code, err := env.invites.Generate(ctx, g.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, env.members.DeleteGroup(ctx, g.ID, "alice"))

	_, err = env.invites.Resolve(ctx, code)
	assertKind(t, err, errs.KindNotFound)
	_, err = env.invites.Join(ctx, code, "bob")
	assertKind(t, err, errs.KindNotFound)
	_, err = env.invites.Generate(ctx, g.ID, "alice")
	assertKind(t, err, errs.KindNotFound)
}
