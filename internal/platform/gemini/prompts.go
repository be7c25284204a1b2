package gemini

// Prompt templates executed with text/template. Both instruct the model
// to answer with bare JSON matching the schema the caller unmarshals.

const documentPromptTemplate = `You are an expert instructional designer. From the following training
video transcript, produce a structured training document.

{{if .Title}}Video title: {{.Title}}
{{end}}Transcript:
{{.Transcript}}

Respond with a single JSON object and nothing else, using this schema:
{
  "chapters": [{"title": string, "start_time": number, "end_time": number}],
  "procedure": [{"order": number, "title": string, "description": string}],
  "key_points": [string]
}

Chapter times are seconds from the start of the video. Steps must be in
execution order. Key points are short, standalone sentences.`

const evaluationPromptTemplate = `You are grading a trainee's free-text answer to a quiz question.

Question: {{.Question}}
Trainee's answer: {{.Answer}}
{{if .Material}}
Source material:
{{.Material}}
{{end}}
Respond with a single JSON object and nothing else, using this schema:
{"score": number, "correct": boolean, "feedback": string}

Score is 0-100. Mark correct when the answer demonstrates understanding
even if the wording differs from the material. Feedback is 1-3 sentences
addressed to the trainee.`

// documentPromptData feeds documentPromptTemplate.
type documentPromptData struct {
	Transcript string
	Title      string
}

// evaluationPromptData feeds evaluationPromptTemplate.
type evaluationPromptData struct {
	Question string
	Answer   string
	Material string
}
