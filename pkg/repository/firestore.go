package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionMessages      = "messages"
	collectionMemories      = "memories"
	collectionProfiles      = "profiles"
	collectionConversations = "conversations"

	distanceField = "VectorDistance"
)

// Firestore implements Repository interface using Firestore
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Close closes the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutMessage(ctx context.Context, msg *model.Message) error {
	if _, err := r.client.Collection(collectionMessages).Doc(string(msg.ID)).Set(ctx, msg); err != nil {
		return goerr.Wrap(err, "failed to put message", goerr.V("id", msg.ID))
	}
	return nil
}

func (r *Firestore) ListMessagesByConversation(ctx context.Context, id model.ConversationID, limit int) ([]*model.Message, error) {
	q := r.client.Collection(collectionMessages).
		Where("ConversationID", "==", string(id)).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit)

	msgs, err := fetchMessages(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages by conversation", goerr.V("conversation_id", id))
	}
	return reverse(msgs), nil
}

func (r *Firestore) ListMessagesByChannel(ctx context.Context, channel model.Channel, limit int) ([]*model.Message, error) {
	q := r.client.Collection(collectionMessages).
		Where("Channel", "==", string(channel)).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit)

	msgs, err := fetchMessages(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages by channel", goerr.V("channel", channel))
	}
	return reverse(msgs), nil
}

func (r *Firestore) ListRecentMessages(ctx context.Context, limit int) ([]*model.Message, error) {
	q := r.client.Collection(collectionMessages).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit)

	msgs, err := fetchMessages(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent messages")
	}
	return msgs, nil
}

func fetchMessages(ctx context.Context, q firestore.Query) ([]*model.Message, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var msgs []*model.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages")
		}

		var msg model.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("doc_id", doc.Ref.ID))
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

func reverse(msgs []*model.Message) []*model.Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.Memory) error {
	if _, err := r.client.Collection(collectionMemories).Doc(string(memory.ID)).Set(ctx, memory); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("id", memory.ID))
	}
	return nil
}

// SearchMemories runs a cosine FindNearest query. Firestore reports cosine distance
// (1 - similarity), so the similarity floor is converted into a distance ceiling.
func (r *Firestore) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*model.ScoredMemory, error) {
	if input.Limit <= 0 {
		return nil, nil
	}

	q := r.client.Collection(collectionMemories).Query
	if input.OwnerID != "" {
		q = q.Where("OwnerID", "==", input.OwnerID)
	}

	maxDistance := 1 - input.Threshold
	vq := q.FindNearest("Embedding", firestore.Vector32(input.Embedding), input.Limit, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceThreshold:   &maxDistance,
			DistanceResultField: distanceField,
		})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.ScoredMemory
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory search results")
		}

		var memory model.Memory
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", doc.Ref.ID))
		}

		distance, _ := doc.Data()[distanceField].(float64)
		results = append(results, &model.ScoredMemory{
			Memory:     &memory,
			Similarity: 1 - distance,
		})
	}

	return results, nil
}

func (r *Firestore) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	doc, err := r.client.Collection(collectionProfiles).Doc(profileDocID(ownerID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "profile not found", goerr.V("owner_id", ownerID))
		}
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("owner_id", ownerID))
	}

	var profile model.Profile
	if err := doc.DataTo(&profile); err != nil {
		return nil, goerr.Wrap(err, "failed to decode profile", goerr.V("owner_id", ownerID))
	}
	return &profile, nil
}

func (r *Firestore) PutProfile(ctx context.Context, profile *model.Profile) error {
	if _, err := r.client.Collection(collectionProfiles).Doc(profileDocID(profile.OwnerID)).Set(ctx, profile); err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("owner_id", profile.OwnerID))
	}
	return nil
}

// profileDocID maps the anonymous owner to a fixed document because Firestore rejects empty IDs
func profileDocID(ownerID string) string {
	if ownerID == "" {
		return "_default"
	}
	return ownerID
}

func (r *Firestore) PutConversation(ctx context.Context, conv *model.Conversation) error {
	if _, err := r.client.Collection(collectionConversations).Doc(string(conv.ID)).Set(ctx, conv); err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	doc, err := r.client.Collection(collectionConversations).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var conv model.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", id))
	}
	return &conv, nil
}

func (r *Firestore) ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	iter := r.client.Collection(collectionConversations).
		OrderBy("UpdatedAt", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var convs []*model.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversations")
		}

		var conv model.Conversation
		if err := doc.DataTo(&conv); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", doc.Ref.ID))
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}

func (r *Firestore) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	iter := r.client.Collection(collectionMessages).
		Where("ConversationID", "==", string(id)).
		Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to iterate conversation messages", goerr.V("id", id))
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue message deletion", goerr.V("doc_id", doc.Ref.ID))
		}
	}

	if _, err := bw.Delete(r.client.Collection(collectionConversations).Doc(string(id))); err != nil {
		bw.End()
		return goerr.Wrap(err, "failed to enqueue conversation deletion", goerr.V("id", id))
	}
	bw.End()

	return nil
}

func (r *Firestore) UpdateConversationTitle(ctx context.Context, id model.ConversationID, title string) error {
	_, err := r.client.Collection(collectionConversations).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Title", Value: title},
		{Path: "UpdatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to update conversation title", goerr.V("id", id))
	}
	return nil
}
