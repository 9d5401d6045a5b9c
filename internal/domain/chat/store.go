package chat

import "context"

// Store persists chats and their message logs.
type Store interface {
	// Create opens a new empty chat.
	Create(ctx context.Context, teamID uint) (*Chat, error)

	// Get loads a chat with its metadata.
	Get(ctx context.Context, chatID uint) (*Chat, error)

	// AppendMessage appends one entry to the chat's log.
	AppendMessage(ctx context.Context, msg *Message) error

	// History returns the full ordered message log.
	History(ctx context.Context, chatID uint) ([]Message, error)

	// CountByType returns the number of messages of the given type.
	CountByType(ctx context.Context, chatID uint, msgType MessageType) (int64, error)

	// GetMetadataValue reads one metadata key; empty string when absent.
	GetMetadataValue(ctx context.Context, chatID uint, key string) (string, error)

	// SetMetadataValue writes one metadata key.
	SetMetadataValue(ctx context.Context, chatID uint, key, value string) error
}

// IsCancelled reads the cancellation flag from durable storage.
func IsCancelled(ctx context.Context, store Store, chatID uint) (bool, error) {
	value, err := store.GetMetadataValue(ctx, chatID, MetadataKeyCancelled)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// ClearCancelled resets the cancellation flag. The flag cancels exactly
// one generation; whoever consumes it clears it so the next generation
// on the chat starts clean.
func ClearCancelled(ctx context.Context, store Store, chatID uint) error {
	return store.SetMetadataValue(ctx, chatID, MetadataKeyCancelled, "")
}
