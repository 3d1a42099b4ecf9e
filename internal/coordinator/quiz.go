package coordinator

import (
	"context"

	"go.uber.org/zap"

	"studyhall/internal/metrics"
	"studyhall/internal/models"
	"studyhall/internal/roomcode"
	"studyhall/internal/store"
)

// Quiz state machine: NotStarted -> QuestionOpen -> QuestionRevealed ->
// (QuestionOpen | Complete). Only the quiz master advances or finalizes;
// Complete is terminal until a fresh quiz overwrites the whole structure.

// StartQuiz installs a fresh quiz with identity as quiz master. The caller
// needs canShare (quiz content is shared content). Starting over a running
// quiz is rejected; starting over a complete or absent one overwrites it.
func (c *Coordinator) StartQuiz(ctx context.Context, code string, identity models.Identity, questions []models.QuizQuestion) error {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	if !doc.CanShare(identity.ID) {
		return ErrPermissionDenied
	}
	if len(questions) == 0 {
		return ErrInvalidQuizTransition
	}
	if doc.QuizState != nil && !doc.QuizState.IsComplete {
		return ErrInvalidQuizTransition
	}

	quiz := &models.QuizState{
		QuizMasterID: identity.ID,
		CurrentIndex: 0,
		Questions:    questions,
		Scores:       map[string]int{},
		Answered:     map[string]bool{},
		IsRevealed:   false,
		IsComplete:   false,
	}

	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldQuizState, quiz)); err != nil {
		return c.wrapStoreErr(err)
	}
	metrics.QuizStarted()
	c.logger.Info("quiz started",
		zap.String("code", code),
		zap.String("quizMasterId", identity.ID),
		zap.Int("questions", len(questions)))
	return nil
}

// SubmitAnswer records identity's answer for the open question. Each
// participant gets at most one submission per question; the answered map
// enforces it even if the same client re-sends.
func (c *Coordinator) SubmitAnswer(ctx context.Context, code string, identity models.Identity, optionIndex int) error {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	if !doc.HasParticipant(identity.ID) {
		return ErrNotParticipant
	}

	quiz := doc.QuizState
	if quiz == nil || quiz.IsComplete || quiz.IsRevealed {
		return ErrInvalidQuizTransition
	}
	if quiz.Answered[identity.ID] {
		return ErrInvalidQuizTransition
	}
	question := quiz.Questions[quiz.CurrentIndex]
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return ErrInvalidQuizTransition
	}

	quiz.Answered[identity.ID] = true
	if optionIndex == question.AnswerIndex {
		quiz.Scores[identity.ID]++
	}

	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldQuizState, quiz)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

// RevealAnswer freezes submissions for the current question. Quiz master only.
func (c *Coordinator) RevealAnswer(ctx context.Context, code string, identity models.Identity) error {
	code = roomcode.Normalize(code)

	_, quiz, err := c.readQuizAsMaster(ctx, code, identity)
	if err != nil {
		return err
	}
	if quiz.IsComplete || quiz.IsRevealed {
		return ErrInvalidQuizTransition
	}

	quiz.IsRevealed = true
	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldQuizState, quiz)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

// NextQuestion advances a revealed question to the next open one, or to
// Complete when the question list is exhausted. Quiz master only.
func (c *Coordinator) NextQuestion(ctx context.Context, code string, identity models.Identity) error {
	code = roomcode.Normalize(code)

	_, quiz, err := c.readQuizAsMaster(ctx, code, identity)
	if err != nil {
		return err
	}
	if quiz.IsComplete || !quiz.IsRevealed {
		return ErrInvalidQuizTransition
	}

	if quiz.CurrentIndex+1 >= len(quiz.Questions) {
		quiz.IsComplete = true
	} else {
		quiz.CurrentIndex++
		quiz.IsRevealed = false
		quiz.Answered = map[string]bool{}
	}

	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldQuizState, quiz)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

// EndQuiz finalizes the quiz from the revealed state. Quiz master only.
func (c *Coordinator) EndQuiz(ctx context.Context, code string, identity models.Identity) error {
	code = roomcode.Normalize(code)

	_, quiz, err := c.readQuizAsMaster(ctx, code, identity)
	if err != nil {
		return err
	}
	if quiz.IsComplete || !quiz.IsRevealed {
		return ErrInvalidQuizTransition
	}

	quiz.IsComplete = true
	if err := c.store.UpdateFields(ctx, code, store.Set(store.FieldQuizState, quiz)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

// ResetQuiz clears a finished quiz entirely, returning the room to "no quiz
// running". Allowed for the quiz master or the host.
func (c *Coordinator) ResetQuiz(ctx context.Context, code string, identity models.Identity) error {
	code = roomcode.Normalize(code)

	doc, err := c.readSession(ctx, code)
	if err != nil {
		return err
	}
	quiz := doc.QuizState
	if quiz == nil {
		return nil
	}
	if identity.ID != quiz.QuizMasterID && identity.ID != doc.HostID {
		return ErrPermissionDenied
	}
	if !quiz.IsComplete {
		return ErrInvalidQuizTransition
	}

	if err := c.store.UpdateFields(ctx, code, store.Delete(store.FieldQuizState)); err != nil {
		return c.wrapStoreErr(err)
	}
	return nil
}

func (c *Coordinator) readQuizAsMaster(ctx context.Context, code string, identity models.Identity) (*models.Session, *models.QuizState, error) {
	doc, err := c.readSession(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	quiz := doc.QuizState
	if quiz == nil {
		return nil, nil, ErrInvalidQuizTransition
	}
	if identity.ID != quiz.QuizMasterID {
		return nil, nil, ErrPermissionDenied
	}
	return doc, quiz, nil
}
