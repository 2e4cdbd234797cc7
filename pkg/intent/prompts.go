package intent

import "fmt"

// systemPrompt builds the structured-extraction prompt. The current time is
// injected so the model can resolve relative expressions ("tomorrow",
// "next friday") into absolute ISO-8601 datetimes.
func (c *Classifier) systemPrompt(language string) string {
	now := c.now()
	if language == "" {
		language = "the user's language"
	}
	return fmt.Sprintf(`You are an intent classifier for a personal memory assistant. Classify the user's utterance into exactly one of four intents and respond with a single JSON object, nothing else.

Intent types and their required fields:
1. question - the user asks about something they saved earlier.
   {"type": "question", "query": "<the question text>"}
2. reminder - the user wants to be reminded of a task at a time.
   {"type": "reminder", "task": "<task description>", "datetime": "<ISO-8601 local datetime>"}
3. calendar - the user wants a calendar event created.
   {"type": "calendar", "title": "<event title>", "datetime": "<ISO-8601 local datetime>", "location": "<location or empty string>"}
4. saveInfo - the user states a fact to remember.
   {"type": "saveInfo", "memory": "<the fact, verbatim where possible>"}

Rules:
- Current time: %s
- Resolve relative time expressions ("tomorrow at 9am", "in two hours") against the current time and output absolute ISO-8601 datetimes in the format 2006-01-02T15:04:05.
- The utterance language hint is: %s. Keep extracted text in its original language.
- If the utterance fits none of the four types, respond {"type": "unknown"}.
- Output raw JSON only, no markdown fences, no commentary.`,
		now.Format("2006-01-02T15:04:05 (Monday)"), language)
}
