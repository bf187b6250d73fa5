package roster

import (
	"context"

	"teamchat/module/messaging/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store reads roster source data (groups, orgs, tasks) from mongo.
type Store struct {
	Groups *mongo.Collection
	Orgs   *mongo.Collection
	Tasks  *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		Groups: db.Collection(model.CollGroupChats),
		Orgs:   db.Collection(model.CollOrganizations),
		Tasks:  db.Collection(model.CollTasks),
	}
}

// GroupMembers returns the current roster of an active group.
// A missing or inactive group yields an empty roster, not an error:
// audiences fail closed.
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return nil, nil
	}
	var g model.GroupChat
	err = s.Groups.FindOne(ctx, bson.M{"_id": oid, "is_active": true}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "group roster")
	}
	return g.Members, nil
}

// GroupName returns the display name of an active group, "" when the
// group is unknown.
func (s *Store) GroupName(ctx context.Context, groupID string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return "", nil
	}
	var g model.GroupChat
	err = s.Groups.FindOne(ctx, bson.M{"_id": oid, "is_active": true}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "group name")
	}
	return g.Name, nil
}

func (s *Store) OrgMembers(ctx context.Context, orgID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(orgID)
	if err != nil {
		return nil, nil
	}
	var o model.Organization
	err = s.Orgs.FindOne(ctx, bson.M{"_id": oid}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "org roster")
	}
	return o.Members, nil
}

func (s *Store) TaskParties(ctx context.Context, taskID string) (assignees, watchers []string, err error) {
	oid, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, nil, nil
	}
	var t model.Task
	err = s.Tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "task roster")
	}
	return t.Assignees, t.Watchers, nil
}

// UserGroups lists ids of active groups the user belongs to. Used by the
// registry to rebuild room subscriptions on every register.
func (s *Store) UserGroups(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.Groups.Find(ctx, bson.M{"members": userID, "is_active": true})
	if err != nil {
		return nil, errors.Wrap(err, "user groups")
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var g model.GroupChat
		if err := cur.Decode(&g); err != nil {
			continue
		}
		out = append(out, g.ID.Hex())
	}
	return out, cur.Err()
}

// UserOrg returns the id of the organization the user belongs to,
// "" when the user has none.
func (s *Store) UserOrg(ctx context.Context, userID string) (string, error) {
	var o model.Organization
	err := s.Orgs.FindOne(ctx, bson.M{"members": userID}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "user org")
	}
	return o.ID.Hex(), nil
}
