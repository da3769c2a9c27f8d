package conversation

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

var ErrStorageNotConfigured = goerr.New("archive storage is not configured")

// Archive is the JSON document written to Cloud Storage
type Archive struct {
	Conversation *model.Conversation `json:"conversation"`
	Messages     []*model.Message    `json:"messages"`
	ArchivedAt   time.Time           `json:"archived_at"`
}

func archiveKey(id model.ConversationID) string {
	return "conversations/" + string(id) + ".json"
}

// Archive saves a conversation and its messages to Cloud Storage and returns the object key.
// When deleteAfter is true the conversation is removed from the repository once the
// archive is written.
func (u *UseCase) Archive(ctx context.Context, id model.ConversationID, deleteAfter bool) (string, error) {
	if u.storage == nil {
		return "", ErrStorageNotConfigured
	}

	conv, msgs, err := u.Show(ctx, id, maxMessages)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(&Archive{
		Conversation: conv,
		Messages:     msgs,
		ArchivedAt:   time.Now(),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal archive")
	}

	key := archiveKey(id)
	writer, err := u.storage.Put(ctx, key, "application/json")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create storage writer")
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", goerr.Wrap(err, "failed to write archive to storage", goerr.V("key", key))
	}
	if err := writer.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}

	if deleteAfter {
		if err := u.Delete(ctx, id); err != nil {
			return key, err
		}
	}

	return key, nil
}

// LoadArchive reads an archived conversation from Cloud Storage
func (u *UseCase) LoadArchive(ctx context.Context, id model.ConversationID) (*Archive, error) {
	if u.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	reader, err := u.storage.Get(ctx, archiveKey(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get archive from storage")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read archive data")
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal archive")
	}
	return &archive, nil
}

// Restore writes an archived conversation and its messages back to the repository.
// Message IDs are kept, so restoring twice does not duplicate the transcript.
func (u *UseCase) Restore(ctx context.Context, id model.ConversationID) (*Archive, error) {
	archive, err := u.LoadArchive(ctx, id)
	if err != nil {
		return nil, err
	}
	if archive.Conversation == nil {
		return nil, goerr.New("archive has no conversation", goerr.V("id", id))
	}

	if err := u.repo.PutConversation(ctx, archive.Conversation); err != nil {
		return nil, goerr.Wrap(err, "failed to restore conversation", goerr.V("id", id))
	}
	for _, msg := range archive.Messages {
		if err := u.repo.PutMessage(ctx, msg); err != nil {
			return nil, goerr.Wrap(err, "failed to restore message", goerr.V("id", id), goerr.V("message_id", msg.ID))
		}
	}
	return archive, nil
}
