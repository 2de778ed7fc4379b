package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/repository"
)

// TestSingleOwnerInvariant drives random membership operations against one
// group per run and checks that an active group always has exactly one active
// owner.
func TestSingleOwnerInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	users := []string{"u0", "u1", "u2", "u3", "u4"}

	rapid.Check(t, func(rt *rapid.T) {
		g, err := env.members.CreateGroup(ctx, "u0", &CreateGroupRequest{
			Name:            "prop",
			RequireApproval: rapid.Bool().Draw(rt, "require_approval"),
		})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		code, err := env.invites.Generate(ctx, g.ID, "u0")
		if err != nil {
			rt.Fatalf("generate: %v", err)
		}

		user := rapid.SampledFrom(users)
		// 业务错误是预期结果，只有基础设施错误说明出了问题
		check := func(op string, err error) {
			if errs.KindOf(err) == errs.KindUnavailable {
				rt.Fatalf("%s: %v", op, err)
			}
		}

		rt.Repeat(map[string]func(*rapid.T){
			"add": func(rt *rapid.T) {
				check("add", env.members.AddMember(ctx, g.ID, user.Draw(rt, "actor"), user.Draw(rt, "target")))
			},
			"join": func(rt *rapid.T) {
				_, err := env.invites.Join(ctx, code, user.Draw(rt, "user"))
				check("join", err)
			},
			"approve": func(rt *rapid.T) {
				check("approve", env.members.Approve(ctx, g.ID, user.Draw(rt, "actor"), user.Draw(rt, "target")))
			},
			"promote": func(rt *rapid.T) {
				check("promote", env.members.Promote(ctx, g.ID, user.Draw(rt, "actor"), user.Draw(rt, "target")))
			},
			"demote": func(rt *rapid.T) {
				check("demote", env.members.Demote(ctx, g.ID, user.Draw(rt, "actor"), user.Draw(rt, "target")))
			},
			"remove": func(rt *rapid.T) {
				req := &RemoveMemberRequest{Ban: rapid.Bool().Draw(rt, "ban")}
				check("remove", env.members.Remove(ctx, g.ID, user.Draw(rt, "actor"), user.Draw(rt, "target"), req))
			},
			"leave": func(rt *rapid.T) {
				check("leave", env.members.Leave(ctx, g.ID, user.Draw(rt, "user")))
			},
			"": func(rt *rapid.T) {
				group, err := env.store.Groups.FindByID(ctx, g.ID)
				if err != nil {
					rt.Fatalf("load group: %v", err)
				}
				members, err := env.store.Members.ListActiveForUpdate(ctx, g.ID)
				if err != nil {
					rt.Fatalf("list members: %v", err)
				}
				owners := 0
				for _, m := range members {
					if m.Role == model.RoleOwner {
						owners++
					}
				}
				switch {
				case group.IsActive() && owners != 1:
					rt.Fatalf("active group has %d owners", owners)
				case !group.IsActive() && len(members) != 0:
					rt.Fatalf("deleted group still has %d active members", len(members))
				}
			},
		})
	})
}

// TestStaleRoleCannotDisplaceOwner covers a demotion or removal that read the
// target as an admin just before a hand-over made them owner.
func TestStaleRoleCannotDisplaceOwner(t *testing.T) {
	env := newTestEnv(t, func(s *repository.Store) {
		s.Members = staleMembers{IMemberRepository: s.Members, userID: "bob"}
	})
	ctx := context.Background()
	g := env.createGroup(t, "alice")
	env.addMembers(t, g.ID, "alice", "bob", "carol")
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "bob"))
	require.NoError(t, env.members.Promote(ctx, g.ID, "alice", "carol"))
	require.NoError(t, env.members.Leave(ctx, g.ID, "alice"))
	require.Equal(t, []string{"bob"}, env.owners(t, g.ID))
	before := len(env.feed(t, g.ID))

	err := env.members.Demote(ctx, g.ID, "carol", "bob")
	assertKind(t, err, errs.KindInvalidTarget)

	err = env.members.Remove(ctx, g.ID, "carol", "bob", nil)
	assertKind(t, err, errs.KindInvalidTarget)

	err = env.members.Remove(ctx, g.ID, "carol", "bob", &RemoveMemberRequest{Ban: true})
	assertKind(t, err, errs.KindInvalidTarget)

	assert.Equal(t, []string{"bob"}, env.owners(t, g.ID))
	assert.Len(t, env.feed(t, g.ID), before)
	banned, err := env.store.Bans.Exists(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.False(t, banned)
}
