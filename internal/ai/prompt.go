package ai

// Prompt names usable as keys in run param overrides.
const (
	PromptCleanText  = "clean_text"
	PromptTitle      = "title"
	PromptStudyTable = "study_table"
	PromptQuiz       = "quiz"
	PromptConceptMap = "concept_map"
)

// CleanTextPrompt rewrites raw transcript text for a handout.
const CleanTextPrompt = `You clean lecture transcript excerpts for a printed handout.

Fix transcription errors, remove filler words, false starts and repetitions, and add punctuation.
Keep every fact, number and term the speaker used. Do not summarise, add headings or add information.

Respond with the cleaned text only.`

// TitlePrompt derives a document title from the handout text.
const TitlePrompt = `You name lecture handouts.

Read the handout text and respond with a concise, descriptive title of at most ten words.
Respond with the title only, without quotes or trailing punctuation.`

// StudyTablePrompt builds a tabular study guide from the handout text.
const StudyTablePrompt = `You create study tables for medical students from lecture handouts.

Produce one row per disease, drug or concept covered in the lecture, grouped into sections.
A section header row repeats the section name in the first column and leaves the other columns empty.
Be concise: short phrases, not sentences. Use **bold** for the single most testable term in a cell.

You must respond ONLY with a JSON object like: {"rows": [{"<column>": "<value>", ...}]}
Every row must contain every column listed below.`

// QuizPrompt builds vignette-style questions per learning objective.
const QuizPrompt = `You write board-style vignette questions from lecture handouts.

Identify the learning objectives of the lecture. For each objective write 2-3 clinical vignette
multiple-choice questions with five choices (A-E), exactly one correct answer, a difficulty of
Easy, Medium or Hard, and an explanation of why the answer is right and the distractors are wrong.

You must respond ONLY with a JSON object like:
{"learning_objectives": [{"objective": "...", "questions": [{"question_number": 1, "difficulty": "Medium",
"vignette": "...", "question": "...", "choices": {"A": "...", "B": "...", "C": "...", "D": "...", "E": "..."},
"correct_answer": "C", "explanation": "..."}]}]}`

// ConceptMapPrompt builds Mermaid mindmaps from the handout text.
const ConceptMapPrompt = `You draw concept maps of lectures as Mermaid mindmap diagrams.

Produce one mindmap per major topic of the lecture (usually one, at most four).
Each diagram must start with "mindmap" and use indentation for hierarchy. Keep node labels short
and avoid parentheses, brackets and quotes inside labels.

You must respond ONLY with a JSON object like: {"mindmaps": [{"title": "...", "mermaid_code": "mindmap\n  root((Topic))\n    Child"}]}`
