package app

import (
	"fmt"
	"strings"

	"qrquest/internal/domain"
)

const (
	msgGreeting          = "Hi! Found a QR code? Scan it to get your question."
	msgScanHint          = "Scan a QR code to get the next question."
	msgAskLogin          = "Hi! Please enter your login:"
	msgEmptyLogin        = "The login cannot be empty. Please enter your login:"
	msgAlreadyRegistered = "You are already registered!"
	msgQuestionNotFound  = "Question not found."
	msgAlreadyScanned    = "You have already scanned this QR code."
	msgAlreadyAnswered   = "You have already answered this question."
	msgAlreadyFinished   = "You have already completed the quest and cannot take it again."
	msgInvalidOption     = "Please choose one of the options from the menu."
	msgAnswerAccepted    = "✅ Answer accepted!"
	msgQuestFinished     = "🎉 You have completed the quest!"
	msgQuestClosed       = "The quest is over. Thank you for taking part!"
	msgAnswersClosed     = "The quest is over. Answers are no longer accepted."
	msgTryAgain          = "Something went wrong. Please try again."
	msgAccessDenied      = "You do not have access to this command."
	msgNoneEligible      = "No participant has completed the whole quest yet."
	msgRestartConfirm    = "⚠️ Are you sure you want to restart the bot? Answer yes or no."
	msgRestartRetry      = "Please answer either yes or no."
	msgRestarting        = "♻️ Restarting the bot..."
	msgRestartCancelled  = "Restart cancelled."
	msgUnknownCommand    = "Unknown command. Available: /winner, /stats, /results, /restart."
)

func welcomeText(login string) string {
	return fmt.Sprintf("Thanks, %s! Let's start the quiz.", login)
}

func winnerText(p domain.Participant) string {
	return "🎁 Winner: " + DisplayHandle(p)
}

func statsText(s domain.Stats, catalogSize int) string {
	return fmt.Sprintf("Participants: %d\nFinished: %d\nAnswers: %d\nQuestions: %d",
		s.Participants, s.Finished, s.Answers, catalogSize)
}

func broadcastText(n int) string {
	return fmt.Sprintf("Results sent to %d participants.", n)
}

// DisplayHandle renders "login (@nickname)" or just the login.
func DisplayHandle(p domain.Participant) string {
	if p.Nickname == "" {
		return p.DisplayName
	}
	return fmt.Sprintf("%s (@%s)", p.DisplayName, p.Nickname)
}

// FormatSummary renders a participant's per-question correctness report.
func FormatSummary(header string, answers []domain.AnswerSummary, correct, total int) string {
	lines := make([]string, 0, len(answers)+2)
	lines = append(lines, header)
	for _, a := range answers {
		mark := "❌"
		if a.Correct {
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", a.QuestionID, mark))
	}
	lines = append(lines, fmt.Sprintf("Correct answers: %d of %d", correct, total))
	return strings.Join(lines, "\n")
}

func isYes(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "да":
		return true
	}
	return false
}

func isNo(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "no", "n", "нет":
		return true
	}
	return false
}
