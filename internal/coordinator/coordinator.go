package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyhall/internal/metrics"
	"studyhall/internal/models"
	"studyhall/internal/roomcode"
	"studyhall/internal/store"
	"studyhall/internal/subscription"
)

// maxCodeAttempts bounds collision retries during room creation. The code
// keyspace is ~70k; exhausting this many draws means something is badly wrong.
const maxCodeAttempts = 25

// Coordinator owns all session business logic. Clients hold no authority of
// their own, only a cached snapshot pushed through the subscription manager;
// every mutation flows through here into the session store.
type Coordinator struct {
	store  store.SessionStore
	subs   *subscription.Manager
	codes  *roomcode.Generator
	logger *zap.Logger
}

func New(st store.SessionStore, subs *subscription.Manager, codes *roomcode.Generator, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:  st,
		subs:   subs,
		codes:  codes,
		logger: logger,
	}
}

// CreateRoom persists a fresh session with identity as sole participant and
// host, retrying code generation on collision. A non-nil sink subscribes the
// caller before returning; the returned DetachFunc tears down that feed and
// is nil when no sink was given.
func (c *Coordinator) CreateRoom(ctx context.Context, identity models.Identity, sink subscription.SnapshotFunc) (string, subscription.DetachFunc, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := c.codes.Generate()
		doc := &models.Session{
			Code:         code,
			HostID:       identity.ID,
			Participants: []models.Participant{identity.Participant()},
			Permissions:  map[string]models.SharePermission{identity.ID: {CanShare: true}},
			ChatMessages: []models.ChatMessage{},
			SharedNotes:  []models.NoteBlock{},
			CreatedAtMs:  time.Now().UnixMilli(),
		}

		created, err := c.store.CreateIfAbsent(ctx, code, doc)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		if !created {
			c.logger.Warn("room code collision, retrying", zap.String("code", code))
			continue
		}

		var detach subscription.DetachFunc
		if sink != nil {
			detach, err = c.subs.Attach(ctx, identity.ID, code, sink)
			if err != nil {
				return "", nil, err
			}
		}

		metrics.RoomCreated()
		c.logger.Info("room created",
			zap.String("code", code), zap.String("hostId", identity.ID))
		return code, detach, nil
	}
	return "", nil, ErrCodeSpaceExhausted
}

// JoinRoom appends identity to the room's participants. Joining a room you
// are already in is a no-op and does not reset an existing canShare flag.
// A non-nil sink subscribes the caller; the returned DetachFunc tears down
// that feed and is nil when no sink was given.
func (c *Coordinator) JoinRoom(ctx context.Context, code string, identity models.Identity, sink subscription.SnapshotFunc) (subscription.DetachFunc, error) {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if !doc.HasParticipant(identity.ID) {
		participants := models.AppendParticipant(doc.Participants, identity.Participant())
		perms := doc.Permissions
		if _, ok := perms[identity.ID]; !ok {
			perms = models.SetPermission(perms, identity.ID, false)
		}
		err := c.store.UpdateFields(ctx, code,
			store.Set(store.FieldParticipants, participants),
			store.Set(store.FieldPermissions, perms),
		)
		if err != nil {
			return nil, c.wrapStoreErr(err)
		}
	}

	var detach subscription.DetachFunc
	if sink != nil {
		detach, err = c.subs.Attach(ctx, identity.ID, code, sink)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info("participant joined",
		zap.String("code", code), zap.String("userId", identity.ID))
	return detach, nil
}

// LeaveRoom removes identity from the room. The subscription is detached
// first so a client never observes its own post-departure state. If the room
// empties it is deleted; if the host leaves, the earliest remaining joiner
// inherits the host role and sharing rights. The host check must run before
// the generic removal path or hostId would dangle.
func (c *Coordinator) LeaveRoom(ctx context.Context, code string, identity models.Identity) error {
	code = roomcode.Normalize(code)

	c.subs.Detach(identity.ID)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	if !doc.HasParticipant(identity.ID) {
		return nil
	}

	remaining := models.RemoveParticipant(doc.Participants, identity.ID)

	if len(remaining) == 0 {
		if err := c.store.Delete(ctx, code); err != nil {
			return c.wrapStoreErr(err)
		}
		metrics.RoomDeleted()
		c.logger.Info("room deleted, last participant left", zap.String("code", code))
		return nil
	}

	perms := models.RemovePermission(doc.Permissions, identity.ID)
	muts := []store.Mutation{
		store.Set(store.FieldParticipants, remaining),
	}

	if identity.ID == doc.HostID {
		newHost := remaining[0]
		perms = models.SetPermission(perms, newHost.ID, true)
		muts = append(muts, store.Set(store.FieldHostID, newHost.ID))
		c.logger.Info("host migrated",
			zap.String("code", code),
			zap.String("from", identity.ID),
			zap.String("to", newHost.ID))
	}
	muts = append(muts, store.Set(store.FieldPermissions, perms))

	if err := c.store.UpdateFields(ctx, code, muts...); err != nil {
		return c.wrapStoreErr(err)
	}

	c.logger.Info("participant left",
		zap.String("code", code), zap.String("userId", identity.ID))
	return nil
}

// SendChatMessage appends a chat message. Chat carries no permission gate;
// the sharing restriction applies only to notes and quiz content.
func (c *Coordinator) SendChatMessage(ctx context.Context, code string, identity models.Identity, text string) error {
	code = roomcode.Normalize(code)

	msg := models.ChatMessage{
		ID:          uuid.New().String(),
		SenderID:    identity.ID,
		SenderName:  identity.DisplayName,
		Text:        text,
		TimestampMs: time.Now().UnixMilli(),
	}

	if err := c.store.UpdateFields(ctx, code, store.Append(store.FieldChatMessages, msg)); err != nil {
		return c.wrapStoreErr(err)
	}
	metrics.ChatMessageAppended()
	return nil
}

// ShareNotes appends a note block, gated on the author's canShare permission.
func (c *Coordinator) ShareNotes(ctx context.Context, code string, identity models.Identity, lines []string) error {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	if !doc.CanShare(identity.ID) {
		return ErrPermissionDenied
	}

	block := models.NoteBlock{
		ID:         uuid.New().String(),
		AuthorID:   identity.ID,
		AuthorName: identity.DisplayName,
		Lines:      lines,
	}

	if err := c.store.UpdateFields(ctx, code, store.Append(store.FieldSharedNotes, block)); err != nil {
		return c.wrapStoreErr(err)
	}
	metrics.NoteBlockAppended()
	return nil
}

// SetSharePermission lets the host grant or revoke another participant's
// sharing rights.
func (c *Coordinator) SetSharePermission(ctx context.Context, code string, identity models.Identity, targetID string, canShare bool) error {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	if identity.ID != doc.HostID {
		return ErrPermissionDenied
	}
	if !doc.HasParticipant(targetID) {
		return ErrNotParticipant
	}

	perms := models.SetPermission(doc.Permissions, targetID, canShare)
	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldPermissions, perms)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

// Snapshot returns the current session document once, without subscribing.
func (c *Coordinator) Snapshot(ctx context.Context, code string) (*models.Session, error) {
	return c.readSession(ctx, roomcode.Normalize(code))
}

func (c *Coordinator) readSession(ctx context.Context, code string) (*models.Session, error) {
	doc, err := c.store.ReadOnce(ctx, code)
	if err == store.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return doc, nil
}

func (c *Coordinator) wrapStoreErr(err error) error {
	if err == store.ErrNotFound {
		return ErrRoomNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreWrite, err)
}
