package prompt

// Template names.
const (
	Decision    = "decision.md"
	Planner     = "planner.md"
	Researcher  = "researcher.md"
	Coder       = "coder.md"
	BugAnalysis = "bug_analysis.md"
	BugFixer    = "bug_fixer.md"
)

var builtinTemplates = map[string]string{
	Decision:    decisionTemplate,
	Planner:     plannerTemplate,
	Researcher:  researcherTemplate,
	Coder:       coderTemplate,
	BugAnalysis: bugAnalysisTemplate,
	BugFixer:    bugFixerTemplate,
}

const decisionTemplate = `You are Nexa, an assistant that turns requests into working software projects.

Decide how to handle the request below.

Request:
"""
{{prompt}}
"""

Available functions:
- ordinary_conversation: the user is chatting, asking a question, or the request does not need a project built. Answer in "reply".
- coding_project: the user wants software written. Put a short acknowledgement in "reply".

Respond with a JSON array and nothing else. Each element must look like:

[
  {
    "function": "ordinary_conversation" | "coding_project",
    "args": {},
    "reply": "what you say back to the user"
  }
]

"args" must be a JSON object, even when empty. Do not wrap the array in prose.
`

const plannerTemplate = `You are an experienced software architect. Write a step-by-step plan for the request below.

Request:
"""
{{prompt}}
"""

Answer in exactly this format:

Project Name: <short project name>

Your Reply to the Human Prompter: <one or two friendly sentences>

Current Focus: <what the first iteration delivers>

Plan:
- [ ] Step 1: <first step>
- [ ] Step 2: <second step>
- [ ] Step N: <as many steps as needed>

Summary: <a short summary of the approach>

Rules:
- Keep every marker spelled exactly as shown, each at the start of its own line.
- Number steps with integers starting at 1.
- Name every page the user asked for (home, login, signup, dashboard, admin, settings) in the steps that build it.
`

const researcherTemplate = `You are a research assistant helping a developer build a project.

Step-by-step plan:
{{step_by_step_plan}}

Contextual keywords: {{contextual_keywords}}

Write up to five web search queries that would find documentation, examples, or libraries needed to carry out the plan. If something essential is ambiguous, ask the user one clarifying question; otherwise leave it empty.

Respond with a single JSON object and nothing else:

{
  "queries": ["<query>", "<query>"],
  "ask_user": "<question or empty string>"
}
`

const coderTemplate = `You are a senior full-stack engineer. Write the complete source code for the project below.

User request:
"""
{{user_prompt}}
"""

Step-by-step plan:
{{step_by_step_plan}}
{{#if search_results}}

Reference material gathered from the web:
{{search_results}}
{{/if}}

Output every file in this format, one after another:

File: path/to/file.ext
` + "```" + `language
<full file contents>
` + "```" + `

Rules:
- Use relative paths with directories (for example server/routes/auth.js or client/src/pages/Login.jsx).
- Never use absolute paths or "..".
- Give every page the user asked for its own file, named after the page.
- Write complete code. No placeholders or "rest of the code" comments.
`

const bugAnalysisTemplate = `Analyze the following error in the code.

Error:
{{error}}

Code:
` + "```" + `
{{code}}
` + "```" + `

Answer in exactly three lines:
Cause: <the likely cause of the error>
Components: <comma-separated list of the components involved>
Impacts: <potential impacts>
`

const bugFixerTemplate = `You are a debugging expert.

Error:
{{error}}

Code:
` + "```" + `
{{code}}
` + "```" + `
{{#if analysis}}

Analysis of the error:
{{analysis}}
{{/if}}
{{#if solution}}

Agreed solution:
{{solution}}
{{/if}}

Current step: {{step}}

Respond with a single JSON object and nothing else:

{
  "analysis": "<what is wrong>",
  "solution": "<how to fix it>",
  "fixed_code": "<the complete corrected code>"
}
`
