package models

// Resp is the generic response envelope used for errors and simple acks.
type Resp struct {
	OK   bool        `json:"ok"`
	Info interface{} `json:"info"`
}

type CreateRoomResp struct {
	OK   bool   `json:"ok"`
	Code string `json:"code"`
}

type ChatReq struct {
	Text string `json:"text"`
}

type NotesReq struct {
	Lines []string `json:"lines"`
}

type GenerateNotesReq struct {
	Topic string `json:"topic"`
}

type StartQuizReq struct {
	// Either a ready-made question list or a topic for the oracle.
	Questions []QuizQuestion `json:"questions,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Count     int            `json:"count,omitempty"`
}

type AnswerReq struct {
	OptionIndex int `json:"optionIndex"`
}

type PermissionReq struct {
	ParticipantID string `json:"participantId"`
	CanShare      bool   `json:"canShare"`
}

type WSFrame struct {
	Type string      `json:"type"` // "snapshot","deleted","error"
	Data interface{} `json:"data,omitempty"`
}
