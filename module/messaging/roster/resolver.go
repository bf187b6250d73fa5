package roster

import (
	"context"

	"teamchat/module/messaging/model"
	"teamchat/tools/errs"

	"github.com/samber/lo"
)

// Source is the roster data the resolver reads. Implemented by *Store;
// tests use an in-memory fake.
type Source interface {
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
	OrgMembers(ctx context.Context, orgID string) ([]string, error)
	TaskParties(ctx context.Context, taskID string) (assignees, watchers []string, err error)
	UserGroups(ctx context.Context, userID string) ([]string, error)
	UserOrg(ctx context.Context, userID string) (string, error)
}

// Resolver derives the audience for a conversation or room. Audiences are
// recomputed from source data on every call; nothing is cached, so a roster
// change takes effect on the next dispatch. The sender stays in the
// audience so their ledger row and list signal are covered; presence
// broadcasts exclude the subject at the dispatch layer instead.
type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// AudienceForDM is just the pair, deduplicated for self-DMs.
func (r *Resolver) AudienceForDM(a, b string) []string {
	return lo.Uniq([]string{a, b})
}

// AudienceForGroup returns the group roster in roster order. Missing or
// inactive groups fail closed with an empty audience.
func (r *Resolver) AudienceForGroup(ctx context.Context, groupID string) ([]string, error) {
	members, err := r.src.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(members), nil
}

func (r *Resolver) AudienceForOrg(ctx context.Context, orgID string) ([]string, error) {
	members, err := r.src.OrgMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(members), nil
}

// AudienceForTask is the union of assignees and watchers.
func (r *Resolver) AudienceForTask(ctx context.Context, taskID string) ([]string, error) {
	assignees, watchers, err := r.src.TaskParties(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(append(assignees, watchers...)), nil
}

// OrgOf returns the user's organization id, "" when they have none.
func (r *Resolver) OrgOf(ctx context.Context, userID string) (string, error) {
	return r.src.UserOrg(ctx, userID)
}

// PresenceAudience is everyone who can see the user's status dot: the
// organization roster when the user belongs to one, otherwise the union
// of their group rosters. The subject themselves stays in the returned
// slice; broadcast paths filter them out.
func (r *Resolver) PresenceAudience(ctx context.Context, userID string) ([]string, error) {
	org, err := r.src.UserOrg(ctx, userID)
	if err != nil {
		return nil, err
	}
	if org != "" {
		return r.AudienceForOrg(ctx, org)
	}

	groups, err := r.src.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, g := range groups {
		members, err := r.AudienceForGroup(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return lo.Uniq(out), nil
}

// Authorize reports whether userID is a member of the entity behind the
// room key. Used to gate ad-hoc room joins and inbound sends.
func (r *Resolver) Authorize(ctx context.Context, userID, room string) (bool, error) {
	kind, id, ok := model.ParseRoom(room)
	if !ok {
		return false, errs.ErrUnknownRoom
	}
	switch kind {
	case model.RoomKindUser:
		return id == userID, nil
	case model.RoomKindGroup:
		members, err := r.AudienceForGroup(ctx, id)
		if err != nil {
			return false, err
		}
		return lo.Contains(members, userID), nil
	case model.RoomKindOrg:
		members, err := r.AudienceForOrg(ctx, id)
		if err != nil {
			return false, err
		}
		return lo.Contains(members, userID), nil
	case model.RoomKindTask:
		parties, err := r.AudienceForTask(ctx, id)
		if err != nil {
			return false, err
		}
		return lo.Contains(parties, userID), nil
	}
	return false, errs.ErrUnknownRoom
}

// RoomsForUser computes the full room set a fresh session subscribes to:
// the private inbox room, every active group, and the organization room.
// The set is rebuilt from scratch on each register so stale memberships
// never survive a reconnect.
func (r *Resolver) RoomsForUser(ctx context.Context, userID string) ([]string, error) {
	rooms := []string{model.RoomUser(userID)}

	groups, err := r.src.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		rooms = append(rooms, model.RoomGroup(g))
	}

	org, err := r.src.UserOrg(ctx, userID)
	if err != nil {
		return nil, err
	}
	if org != "" {
		rooms = append(rooms, model.RoomOrg(org))
	}
	return rooms, nil
}
