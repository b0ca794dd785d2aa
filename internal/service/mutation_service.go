package service

import (
	"context"
	"fmt"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/models"
	lstypes "chatsync/pkg/logsource/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogWriter is the slice of the ordered log source the mutation applier
// needs. Every user intent becomes exactly one WriteAtomic call.
type LogWriter interface {
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	NewKey(conversationID string) models.MessageKey
	WriteAtomic(ctx context.Context, pairs []lstypes.PathValue) error
}

// Uploader pushes a local asset to external storage and returns its
// public URL. An upload failure must leave no trace in the log source.
type Uploader interface {
	UploadAsset(ctx context.Context, localPath string) (string, error)
}

// OutboxStore persists failed sends across restarts.
type OutboxStore interface {
	SaveRecord(ctx context.Context, record *models.OutboxRecord) error
	GetRecord(ctx context.Context, id string) (*models.OutboxRecord, error)
	ListRecords(ctx context.Context, conversationID string) ([]models.OutboxRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

// SendRequest carries one outgoing message's compose state. MediaPaths
// are local file paths, uploaded before the write is issued.
type SendRequest struct {
	ConversationID string
	Text           string
	MediaPaths     []string
	StickerRef     string
	ReplyTo        *models.ReplySnapshot
	ForwardedFrom  *models.ForwardInfo
}

// MutationApplier translates user intents into atomic multi-path writes
// against the ordered log source. It never touches the window directly;
// sends are reflected back through the live feed like any other writer's
// messages. Sends that fail are parked in the outbox with their full
// compose state; every other mutation is idempotent-retryable by
// repeating the gesture, so failures only reach the error log.
type MutationApplier struct {
	source   LogWriter
	uploader Uploader
	outbox   OutboxStore
	resolver *MentionResolver
	selfID   string
	logger   *logrus.Logger
	now      func() time.Time
}

// NewMutationApplier creates an applier acting as the given user. The
// uploader, outbox, and resolver are each optional; without them media
// sends, failed-send retention, and mention fan-out are disabled
// respectively.
func NewMutationApplier(source LogWriter, uploader Uploader, outbox OutboxStore, resolver *MentionResolver, selfID string, logger *logrus.Logger) *MutationApplier {
	return &MutationApplier{
		source:   source,
		uploader: uploader,
		outbox:   outbox,
		resolver: resolver,
		selfID:   selfID,
		logger:   logger,
		now:      time.Now,
	}
}

func messagePath(conversationID string, key models.MessageKey) string {
	return fmt.Sprintf("messages/%s/%s", conversationID, key)
}

func conversationPath(conversationID, field string) string {
	return fmt.Sprintf("conversations/%s/%s", conversationID, field)
}

// Send validates, uploads attachments, and writes the new message row
// together with the conversation fan-out in one atomic write. On any
// failure the compose state is preserved in the outbox and nothing is
// written.
func (a *MutationApplier) Send(ctx context.Context, req SendRequest) (models.MessageKey, error) {
	if err := a.validateSend(req); err != nil {
		return "", err
	}

	mediaURLs, err := a.uploadAll(ctx, req.MediaPaths)
	if err != nil {
		a.parkSend(req, err)
		return "", err
	}

	conv, err := a.source.GetConversation(ctx, req.ConversationID)
	if err != nil {
		a.parkSend(req, err)
		return "", errors.Wrap(err, errors.ErrCodeLogSourceAPI, "failed to load conversation for send")
	}

	key := a.source.NewKey(req.ConversationID)
	ts := a.now().UnixMilli()

	msg := models.Message{
		Key:           key,
		SenderID:      a.selfID,
		Text:          req.Text,
		MediaURLs:     mediaURLs,
		StickerRef:    req.StickerRef,
		Timestamp:     ts,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: req.ForwardedFrom,
	}

	var mentioned map[string]bool
	if a.resolver != nil && req.Text != "" {
		mentioned = a.resolver.ResolveUserIDs(ctx, req.Text)
		if len(mentioned) > 0 {
			msg.Mentions = mentioned
		}
	}

	pairs := []lstypes.PathValue{
		{Path: messagePath(req.ConversationID, key), Value: msg},
		{Path: conversationPath(req.ConversationID, "lastMessage"), Value: previewText(req)},
		{Path: conversationPath(req.ConversationID, "lastMessageTimestamp"), Value: ts},
		{Path: conversationPath(req.ConversationID, "lastMessageSenderId"), Value: a.selfID},
	}
	for _, participant := range conv.OtherParticipants(a.selfID) {
		pairs = append(pairs, lstypes.PathValue{
			Path:  conversationPath(req.ConversationID, "unreadCounts/"+participant),
			Value: conv.UnreadCounts[participant] + 1,
		})
		if mentioned[participant] {
			pairs = append(pairs, lstypes.PathValue{
				Path:  conversationPath(req.ConversationID, "unreadMentions/"+participant),
				Value: conv.UnreadMentions[participant] + 1,
			})
		}
	}

	LogMutation(ctx, a.logger, "send", req.ConversationID, string(key), a.selfID, SanitizeContent(req.Text))

	if err := a.source.WriteAtomic(ctx, pairs); err != nil {
		a.parkSend(req, err)
		return "", errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to write message")
	}
	return key, nil
}

// RetrySend replays an outbox record through the normal send path and
// deletes it on success.
func (a *MutationApplier) RetrySend(ctx context.Context, recordID string) (models.MessageKey, error) {
	if a.outbox == nil {
		return "", errors.New(errors.ErrCodeInternalError, "no outbox configured")
	}
	record, err := a.outbox.GetRecord(ctx, recordID)
	if err != nil {
		return "", errors.NewDatabaseError("get outbox record", err)
	}
	if record == nil {
		return "", errors.New(errors.ErrCodeNotFound, "outbox record not found")
	}

	key, err := a.Send(ctx, SendRequest{
		ConversationID: record.ConversationID,
		Text:           record.Text,
		MediaPaths:     record.MediaPaths,
		StickerRef:     record.StickerRef,
		ReplyTo:        record.ReplyTo,
	})
	if err != nil {
		return "", err
	}

	if err := a.outbox.DeleteRecord(ctx, record.ID); err != nil {
		a.logger.WithError(err).WithField("record_id", record.ID).Warn("Failed to remove replayed outbox record")
	}
	return key, nil
}

// EditMessage rewrites a message's text and flags it edited. Only the
// original sender may edit; the store itself does not enforce this.
func (a *MutationApplier) EditMessage(ctx context.Context, conversationID string, msg *models.Message, newText string) error {
	if msg.SenderID != a.selfID {
		return errors.NewPermissionError("edit", "only the sender may edit a message")
	}
	if newText == "" {
		return errors.NewValidationError("text", "", "edited text cannot be empty")
	}
	if len(newText) > constants.MaxMessageTextLength {
		return errors.NewValidationError("text", "", "message text too long")
	}

	base := messagePath(conversationID, msg.Key)
	err := a.source.WriteAtomic(ctx, []lstypes.PathValue{
		{Path: base + "/text", Value: newText},
		{Path: base + "/edited", Value: true},
	})
	if err != nil {
		a.logger.WithError(err).WithField("key", SanitizeKey(string(msg.Key))).Error("Failed to edit message")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to edit message")
	}
	return nil
}

// DeleteForMe soft-deletes a message from this user's view only. The
// live feed reflects it back as a change, which the subscription manager
// turns into a local removal.
func (a *MutationApplier) DeleteForMe(ctx context.Context, conversationID string, key models.MessageKey) error {
	err := a.source.WriteAtomic(ctx, []lstypes.PathValue{
		{Path: messagePath(conversationID, key) + "/deletedFor/" + a.selfID, Value: true},
	})
	if err != nil {
		a.logger.WithError(err).WithField("key", SanitizeKey(string(key))).Error("Failed to delete message for self")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to delete message")
	}
	return nil
}

// DeleteForEveryone removes the message row for all participants, and
// clears its pin entry if present. Allowed for one's own message within
// the deletion window, for admins, and for anyone in a direct chat.
func (a *MutationApplier) DeleteForEveryone(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	if !a.canDeleteForEveryone(conv, msg) {
		return errors.NewPermissionError("delete_for_everyone", "not permitted for this message")
	}

	pairs := []lstypes.PathValue{
		{Path: messagePath(conv.ID, msg.Key), Value: nil},
	}
	if conv.PinnedMessages[msg.Key] {
		pairs = append(pairs, lstypes.PathValue{
			Path:  conversationPath(conv.ID, "pinnedMessages/"+string(msg.Key)),
			Value: nil,
		})
	}

	if err := a.source.WriteAtomic(ctx, pairs); err != nil {
		a.logger.WithError(err).WithField("key", SanitizeKey(string(msg.Key))).Error("Failed to delete message for everyone")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to delete message")
	}
	return nil
}

func (a *MutationApplier) canDeleteForEveryone(conv *models.Conversation, msg *models.Message) bool {
	if conv.Type == models.ConversationDirect {
		return true
	}
	if conv.IsAdmin(a.selfID) {
		return true
	}
	if msg.SenderID != a.selfID {
		return false
	}
	age := a.now().Sub(time.UnixMilli(msg.Timestamp))
	return age <= constants.DefaultDeleteWindowHours*time.Hour
}

// ToggleReaction sets this user's reaction on a message, clearing any
// prior one. Re-selecting the current emoji clears it. At most one
// reaction per user is enforced here by scanning the existing map, not
// by the store.
func (a *MutationApplier) ToggleReaction(ctx context.Context, conversationID string, msg *models.Message, emoji string) error {
	if emoji == "" {
		return errors.NewValidationError("emoji", "", "reaction cannot be empty")
	}

	base := messagePath(conversationID, msg.Key) + "/reactions/"
	var pairs []lstypes.PathValue

	prior, had := msg.ReactionBy(a.selfID)
	if had {
		pairs = append(pairs, lstypes.PathValue{
			Path:  base + prior,
			Value: usersWithout(msg.Reactions[prior], a.selfID),
		})
	}
	if !had || prior != emoji {
		pairs = append(pairs, lstypes.PathValue{
			Path:  base + emoji,
			Value: append(append([]string{}, msg.Reactions[emoji]...), a.selfID),
		})
	}

	if err := a.source.WriteAtomic(ctx, pairs); err != nil {
		a.logger.WithError(err).WithField("key", SanitizeKey(string(msg.Key))).Error("Failed to toggle reaction")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to toggle reaction")
	}
	return nil
}

// PinMessage pins a message and appends a synthetic system message
// describing the action. System messages travel through the same ordered
// log, and therefore the same window path, as user messages.
func (a *MutationApplier) PinMessage(ctx context.Context, conversationID string, key models.MessageKey) error {
	return a.setPinned(ctx, conversationID, key, true)
}

// UnpinMessage removes a pin and appends the matching system message.
func (a *MutationApplier) UnpinMessage(ctx context.Context, conversationID string, key models.MessageKey) error {
	return a.setPinned(ctx, conversationID, key, false)
}

func (a *MutationApplier) setPinned(ctx context.Context, conversationID string, key models.MessageKey, pinned bool) error {
	var pinValue interface{}
	action := "unpinned"
	if pinned {
		pinValue = true
		action = "pinned"
	}

	sysKey := a.source.NewKey(conversationID)
	sysMsg := models.Message{
		Key:       sysKey,
		SenderID:  constants.SystemSenderID,
		Text:      fmt.Sprintf("%s %s a message", a.selfID, action),
		Timestamp: a.now().UnixMilli(),
		System:    true,
	}

	err := a.source.WriteAtomic(ctx, []lstypes.PathValue{
		{Path: conversationPath(conversationID, "pinnedMessages/"+string(key)), Value: pinValue},
		{Path: messagePath(conversationID, sysKey), Value: sysMsg},
	})
	if err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"key":    SanitizeKey(string(key)),
			"pinned": pinned,
		}).Error("Failed to update pin")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to update pin")
	}
	return nil
}

// MarkRead clears this user's unread counters on the conversation.
// Triggered on conversation open, not per message.
func (a *MutationApplier) MarkRead(ctx context.Context, conversationID string) error {
	err := a.source.WriteAtomic(ctx, []lstypes.PathValue{
		{Path: conversationPath(conversationID, "unreadCounts/"+a.selfID), Value: nil},
		{Path: conversationPath(conversationID, "unreadMentions/"+a.selfID), Value: nil},
	})
	if err != nil {
		a.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to mark conversation read")
		return errors.WrapRetryable(err, errors.ErrCodeTransientNetwork, "failed to mark read")
	}
	return nil
}

func (a *MutationApplier) validateSend(req SendRequest) error {
	if err := ValidateConversationID(req.ConversationID); err != nil {
		return errors.NewValidationError("conversationId", req.ConversationID, err.Error())
	}
	if req.Text == "" && len(req.MediaPaths) == 0 && req.StickerRef == "" {
		return errors.NewValidationError("message", "", "message has no content")
	}
	if len(req.Text) > constants.MaxMessageTextLength {
		return errors.NewValidationError("text", "", "message text too long")
	}
	if len(req.MediaPaths) > constants.MaxAttachmentsPerSend {
		return errors.NewValidationError("media", fmt.Sprintf("%d files", len(req.MediaPaths)), fmt.Sprintf("too many attachments (max %d)", constants.MaxAttachmentsPerSend))
	}
	if len(req.MediaPaths) > 0 && a.uploader == nil {
		return errors.New(errors.ErrCodeInternalError, "no uploader configured for media send")
	}
	return nil
}

// uploadAll uploads every attachment before any write is issued. A
// failure on any attachment aborts the send with nothing written.
func (a *MutationApplier) uploadAll(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(paths))
	for i, path := range paths {
		url, err := a.uploader.UploadAsset(ctx, path)
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"index": i,
				"total": len(paths),
			}).Warn("Attachment upload failed")
			return nil, errors.NewUploadError(fmt.Sprintf("attachment %d of %d", i+1, len(paths)), err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// parkSend stores the full compose state in the outbox so the user can
// retry with one gesture.
func (a *MutationApplier) parkSend(req SendRequest, cause error) {
	if a.outbox == nil {
		return
	}
	now := a.now()
	record := &models.OutboxRecord{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Text:           req.Text,
		MediaPaths:     req.MediaPaths,
		StickerRef:     req.StickerRef,
		ReplyTo:        req.ReplyTo,
		LastError:      cause.Error(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// Parking must succeed even when the originating request's context
	// is already canceled
	if err := a.outbox.SaveRecord(context.Background(), record); err != nil {
		a.logger.WithError(err).Error("Failed to park send in outbox")
		return
	}
	a.logger.WithFields(logrus.Fields{
		"record_id":       record.ID,
		"conversation_id": req.ConversationID,
	}).Info("Send parked in outbox for retry")
}

func previewText(req SendRequest) string {
	switch {
	case req.Text != "":
		return req.Text
	case len(req.MediaPaths) > 0:
		return "[media]"
	case req.StickerRef != "":
		return "[sticker]"
	default:
		return ""
	}
}

func usersWithout(users []string, userID string) interface{} {
	remaining := usersWithoutSlice(users, userID)
	if len(remaining) == 0 {
		// nil value deletes the emoji entry outright
		return nil
	}
	return remaining
}

func usersWithoutSlice(users []string, userID string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != userID {
			out = append(out, u)
		}
	}
	return out
}
