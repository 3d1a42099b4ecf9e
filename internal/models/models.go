package models

// Identity is what the external identity provider hands us for a user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Participant is a member of a session, in join order.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// SharePermission gates whether a participant's notes and quiz content are accepted.
type SharePermission struct {
	CanShare bool `json:"canShare"`
}

type ChatMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestampMs"`
}

// NoteBlock is an atomic, author-attributed chunk of shared study content.
type NoteBlock struct {
	ID         string   `json:"id"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
	Lines      []string `json:"lines"`
}

type QuizQuestion struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
}

// QuizState is the shared quiz document. Absent (nil) means no quiz is running.
type QuizState struct {
	QuizMasterID string          `json:"quizMasterId"`
	CurrentIndex int             `json:"currentIndex"`
	Questions    []QuizQuestion  `json:"questions"`
	Scores       map[string]int  `json:"scores"`
	Answered     map[string]bool `json:"answered"`
	IsRevealed   bool            `json:"isRevealed"`
	IsComplete   bool            `json:"isComplete"`
}

// Session is the root aggregate for one study room, keyed by room code.
type Session struct {
	Code         string                     `json:"code"`
	HostID       string                     `json:"hostId"`
	Participants []Participant              `json:"participants"`
	Permissions  map[string]SharePermission `json:"permissions"`
	ChatMessages []ChatMessage              `json:"chatMessages"`
	SharedNotes  []NoteBlock                `json:"sharedNotes"`
	QuizState    *QuizState                 `json:"quizState,omitempty"`
	CreatedAtMs  int64                      `json:"createdAt"`
}

func (i Identity) Participant() Participant {
	return Participant{ID: i.ID, DisplayName: i.DisplayName, AvatarRef: i.AvatarRef}
}

// HasParticipant reports whether id is a current member of the session.
func (s *Session) HasParticipant(id string) bool {
	for _, p := range s.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// CanShare reports the sharing permission for id, defaulting to false.
func (s *Session) CanShare(id string) bool {
	perm, ok := s.Permissions[id]
	return ok && perm.CanShare
}

// AppendParticipant returns a new slice with p appended, or the input
// unchanged if a participant with the same id is already present.
func AppendParticipant(list []Participant, p Participant) []Participant {
	for _, existing := range list {
		if existing.ID == p.ID {
			return list
		}
	}
	out := make([]Participant, 0, len(list)+1)
	out = append(out, list...)
	return append(out, p)
}

// RemoveParticipant returns a new slice with the participant identified by
// id removed. Order of the remaining participants is preserved.
func RemoveParticipant(list []Participant, id string) []Participant {
	out := make([]Participant, 0, len(list))
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// SetPermission returns a copy of perms with id mapped to canShare.
func SetPermission(perms map[string]SharePermission, id string, canShare bool) map[string]SharePermission {
	out := make(map[string]SharePermission, len(perms)+1)
	for k, v := range perms {
		out[k] = v
	}
	out[id] = SharePermission{CanShare: canShare}
	return out
}

// RemovePermission returns a copy of perms without id.
func RemovePermission(perms map[string]SharePermission, id string) map[string]SharePermission {
	out := make(map[string]SharePermission, len(perms))
	for k, v := range perms {
		if k != id {
			out[k] = v
		}
	}
	return out
}
