package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"flashdeck-backend/internal/models"
)

const audioTranscriptionPrompt = "Transcribe the provided audio verbatim. Return plain text only, without markdown, headers, or explanations."

const imageExtractionPrompt = "Extract all text contained in this image. Preserve the structure of tables, lists and paragraphs as far as possible. Return the text only."

var complexityGuides = map[string]string{
	"simple":   "Question and answer are short and simple (1-2 sentences).",
	"medium":   "Cover the key points (2-4 sentences) and include an example.",
	"detailed": "Give a detailed explanation with supporting information, bullet lists and several examples where useful (4+ sentences).",
}

func buildFlashcardPrompt(text string, opts models.GenerationOptions) string {
	var b strings.Builder

	b.WriteString("You are a flashcard creation assistant. Create flashcards from the information below.\n\n")
	b.WriteString("---SOURCE TEXT---\n")
	b.WriteString(text)
	b.WriteString("\n---END---\n\n")

	rng := strings.TrimSpace(opts.Range)
	if rng == "" {
		rng = "the whole text"
	}
	b.WriteString("Range / topic: " + rng + "\n\n")

	switch opts.QuestionCount.Mode {
	case models.QuestionCountExact:
		b.WriteString(fmt.Sprintf("Number of cards: create exactly %d flashcards.\n", opts.QuestionCount.N))
	case models.QuestionCountMax:
		b.WriteString("Number of cards: create as many flashcards as the text supports, covering its content thoroughly.\n")
	default:
		b.WriteString("Number of cards: choose a suitable number for the length and content of the text.\n")
	}

	b.WriteString("Complexity: " + opts.Complexity + ". " + complexityGuides[opts.Complexity] + "\n\n")

	b.WriteString("Language: " + opts.Language + "\n")
	switch opts.Language {
	case "ja":
		b.WriteString(`- Write questions and explanations in Japanese.
- If the source text is English, keep the English phrases and example sentences in the cards and add the explanations in Japanese, so the cards can be used to learn English.
`)
	case "en":
		b.WriteString("- Write every front, back, frontRich and backRich in English, translating the source if it is in another language.\n")
	default:
		b.WriteString("- Write questions and explanations in this language.\n")
	}

	b.WriteString(`
Return ONLY a JSON object of this shape, with no preamble:
{"flashcards": [{"front": "question (plain text)", "back": "answer (plain text)", "frontRich": "question as HTML", "backRich": "answer as HTML"}]}

- front and back must always contain the plain text version.
- frontRich and backRich use HTML: highlight key points with <strong> or <mark>, lists with <ul>/<li>, paragraphs with <p>, subsections with <h4>/<h5>, quotes and example sentences with <blockquote>.
- Allowed tags: p, strong, em, mark, ul, ol, li, blockquote, h4, h5, br, code.
- No two cards may test the same concept.
`)
	return b.String()
}

type promptCard struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

func promptCards(cards []models.Card) string {
	pcs := make([]promptCard, len(cards))
	for i, c := range cards {
		pcs[i] = promptCard{ID: c.ID.String(), Front: c.Front, Back: c.Back}
	}
	data, _ := json.MarshalIndent(pcs, "", "  ")
	return string(data)
}

func languageLine(language string) string {
	if language == "" {
		language = "ja"
	}
	return "Write every generated text in the language with code \"" + language + "\"."
}

func buildMultipleChoicePrompt(cards []models.Card, language string) string {
	return `Create one four-choice question for each of the flashcards below.

Flashcards:
` + promptCards(cards) + `

Return ONLY JSON of this shape:
{"cards": [{"id": "<flashcard id>", "choices": [
  {"id": "a", "text": "correct choice", "isCorrect": true},
  {"id": "b", "text": "wrong choice", "isCorrect": false},
  {"id": "c", "text": "wrong choice", "isCorrect": false},
  {"id": "d", "text": "wrong choice", "isCorrect": false}]}]}

Requirements:
- Exactly four choices per card and exactly one of them correct.
- Wrong choices are related to the correct answer and look plausible but are clearly wrong.
- Generate a question for every card and copy each card id unchanged.
- ` + languageLine(language) + "\n"
}

func buildTrueFalsePrompt(cards []models.Card, language string) string {
	return `You generate true/false questions for study. For each flashcard below write two statements:

1. A true statement that exactly matches the card. Avoid vague wording such as "may" or "is thought to".
2. A false statement that clearly contradicts the card with concrete wrong information, not just a negation, while still checking understanding.

Each statement is a single clear sentence using the card's terminology.

Flashcards:
` + promptCards(cards) + `

Return ONLY JSON of this shape:
[{"cardId": "<flashcard id>", "questions": [{"text": "true statement", "isTrue": true}, {"text": "false statement", "isTrue": false}]}]

` + languageLine(language) + "\n"
}

func buildChatSystemPrompt(material string) string {
	return "You are a study assistant. Answer the learner's questions using the study material below. " +
		"If the material does not cover the question, say so and answer from general knowledge.\n\n" +
		"---MATERIAL---\n" + material + "\n---END---"
}
