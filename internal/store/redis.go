package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"studyhall/internal/models"
)

// RedisSessionStore keeps each session in a hash at session:<CODE>, one hash
// field per document field. HSET on a single field is atomic, which gives the
// field-level last-write-wins semantics the coordinator is written against.
// Sequence appends are read-modify-write, serialized by appendMu so
// concurrent appends from this process never lose entries. All writes flow
// through a single coordinator process, so a process-local lock is enough.
//
// Every successful write publishes the full document as JSON on
// session:<CODE>:updates. Deletion publishes the literal "null".
type RedisSessionStore struct {
	rdb      *redis.Client
	appendMu sync.Mutex
}

const deletedPayload = "null"

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func sessionKey(code string) string { return "session:" + code }
func updatesKey(code string) string { return "session:" + code + ":updates" }

func (s *RedisSessionStore) CreateIfAbsent(ctx context.Context, code string, doc *models.Session) (bool, error) {
	key := sessionKey(code)

	// The code field doubles as the existence marker.
	created, err := s.rdb.HSetNX(ctx, key, "code", code).Result()
	if err != nil {
		return false, fmt.Errorf("create session %s: %w", code, err)
	}
	if !created {
		return false, nil
	}

	fields := map[string]interface{}{
		"hostId":       doc.HostID,
		"participants": mustJSON(doc.Participants),
		"permissions":  mustJSON(doc.Permissions),
		"chatMessages": mustJSON(doc.ChatMessages),
		"sharedNotes":  mustJSON(doc.SharedNotes),
		"createdAt":    strconv.FormatInt(doc.CreatedAtMs, 10),
	}
	if doc.QuizState != nil {
		fields["quizState"] = mustJSON(doc.QuizState)
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return false, fmt.Errorf("create session %s: %w", code, err)
	}

	s.publishSnapshot(ctx, code)
	return true, nil
}

func (s *RedisSessionStore) ReadOnce(ctx context.Context, code string) (*models.Session, error) {
	raw, err := s.rdb.HGetAll(ctx, sessionKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", code, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeSession(raw)
}

func (s *RedisSessionStore) UpdateFields(ctx context.Context, code string, muts ...Mutation) error {
	key := sessionKey(code)

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("update session %s: %w", code, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	for _, m := range muts {
		switch m.Op {
		case OpSet:
			payload, err := json.Marshal(m.Value)
			if err != nil {
				return fmt.Errorf("encode field %s: %w", m.Field, err)
			}
			if err := s.rdb.HSet(ctx, key, string(m.Field), encodeField(m.Field, payload)).Err(); err != nil {
				return fmt.Errorf("set field %s on %s: %w", m.Field, code, err)
			}
		case OpAppend:
			if err := s.appendField(ctx, key, code, m); err != nil {
				return err
			}
		case OpDelete:
			if err := s.rdb.HDel(ctx, key, string(m.Field)).Err(); err != nil {
				return fmt.Errorf("delete field %s on %s: %w", m.Field, code, err)
			}
		default:
			return fmt.Errorf("unknown mutation op %d", m.Op)
		}
	}

	s.publishSnapshot(ctx, code)
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, sessionKey(code)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", code, err)
	}
	s.rdb.Publish(ctx, updatesKey(code), deletedPayload)
	return nil
}

func (s *RedisSessionStore) Subscribe(ctx context.Context, code string, onChange OnChangeFunc) (UnsubscribeFunc, error) {
	pubsub := s.rdb.Subscribe(ctx, updatesKey(code))
	// Force the SUBSCRIBE round trip so no write slips past setup.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", code, err)
	}

	// Read only after the subscription is live. A write landing between the
	// read and the SUBSCRIBE would otherwise be lost until the next write.
	doc, err := s.ReadOnce(ctx, code)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	onChange(doc)

	go func() {
		for msg := range pubsub.Channel() {
			if msg.Payload == deletedPayload {
				onChange(nil)
				return
			}
			var snapshot models.Session
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				continue
			}
			onChange(&snapshot)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

func (s *RedisSessionStore) appendField(ctx context.Context, key, code string, m Mutation) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	current, err := s.rdb.HGet(ctx, key, string(m.Field)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read field %s on %s: %w", m.Field, code, err)
	}

	var payload string
	switch m.Field {
	case FieldChatMessages:
		msg, ok := m.Value.(models.ChatMessage)
		if !ok {
			return fmt.Errorf("append to %s: want ChatMessage, got %T", m.Field, m.Value)
		}
		var seq []models.ChatMessage
		if current != "" {
			if err := json.Unmarshal([]byte(current), &seq); err != nil {
				return fmt.Errorf("decode field %s on %s: %w", m.Field, code, err)
			}
		}
		payload = mustJSON(append(seq, msg))
	case FieldSharedNotes:
		block, ok := m.Value.(models.NoteBlock)
		if !ok {
			return fmt.Errorf("append to %s: want NoteBlock, got %T", m.Field, m.Value)
		}
		var seq []models.NoteBlock
		if current != "" {
			if err := json.Unmarshal([]byte(current), &seq); err != nil {
				return fmt.Errorf("decode field %s on %s: %w", m.Field, code, err)
			}
		}
		payload = mustJSON(append(seq, block))
	default:
		return fmt.Errorf("append not supported for field %s", m.Field)
	}

	if err := s.rdb.HSet(ctx, key, string(m.Field), payload).Err(); err != nil {
		return fmt.Errorf("append to field %s on %s: %w", m.Field, code, err)
	}
	return nil
}

func (s *RedisSessionStore) publishSnapshot(ctx context.Context, code string) {
	doc, err := s.ReadOnce(ctx, code)
	if err != nil {
		return
	}
	s.rdb.Publish(ctx, updatesKey(code), mustJSON(doc))
}

// encodeField stores hostId as a bare string so the hash stays readable with
// redis-cli; everything else is JSON.
func encodeField(f Field, jsonPayload []byte) string {
	if f == FieldHostID {
		var v string
		if err := json.Unmarshal(jsonPayload, &v); err == nil {
			return v
		}
	}
	return string(jsonPayload)
}

func decodeSession(raw map[string]string) (*models.Session, error) {
	doc := &models.Session{
		Code:         raw["code"],
		HostID:       raw["hostId"],
		Participants: []models.Participant{},
		Permissions:  map[string]models.SharePermission{},
		ChatMessages: []models.ChatMessage{},
		SharedNotes:  []models.NoteBlock{},
	}

	if v := raw["createdAt"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode createdAt: %w", err)
		}
		doc.CreatedAtMs = ms
	}
	if v := raw["participants"]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	if v := raw["permissions"]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if v := raw["chatMessages"]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.ChatMessages); err != nil {
			return nil, fmt.Errorf("decode chatMessages: %w", err)
		}
	}
	if v := raw["sharedNotes"]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.SharedNotes); err != nil {
			return nil, fmt.Errorf("decode sharedNotes: %w", err)
		}
	}
	if v := raw["quizState"]; v != "" {
		var quiz models.QuizState
		if err := json.Unmarshal([]byte(v), &quiz); err != nil {
			return nil, fmt.Errorf("decode quizState: %w", err)
		}
		doc.QuizState = &quiz
	}

	return doc, nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
