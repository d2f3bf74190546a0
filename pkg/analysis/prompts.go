package analysis

const auditorSystemPrompt = "You are an expert auditor. Find logical inconsistencies in financial and legal documents."

const conflictPrompt = `
# Task Context
You are reviewing nodes of a knowledge graph built from a user's documents. Nodes are documents or entities mentioned in them.

# Background Data
%s

# Detailed Task Description & Rules
- Compare the nodes pairwise and look for conflicts or inconsistencies.
- Dates: impossible timelines (an invoice dated before its contract starts, a due date before the issue date).
- Amounts: invoice totals that do not match related orders or quotes.
- Terms: payment terms that differ between contracts and invoices.
- Only reference node ids that appear in the background data.
- Keep each description to one sentence.

# Immediate Task Description or Request
Return a JSON object with a "conflicts" list. Each conflict has source_id, target_id, description and severity ("high", "medium" or "low"). Return an empty list when nothing conflicts.
`

const patternGeneratorSystemPrompt = "You are a pattern generation engine for forensic investigations."

const patternGeneratorPrompt = `
# Task Context
You are an expert forensic investigator. A knowledge graph was built from the following document and entity types.

# Background Data
Document types: %s
Entity types: %s

# Detailed Task Description & Rules
- Based only on these types, propose 3 to 5 investigation patterns or red flags to scan for.
- Invoices and vendors suggest kickbacks or shell companies. Emails and contracts suggest hidden clauses.
- id is a unique snake_case string, for example "shell_company_risk".
- severity is one of "low", "medium", "high" or "critical".
- prompt_template instructs another model to find the pattern in a JSON object with "nodes" and "edges".

# Immediate Task Description or Request
Return a JSON object with a "patterns" list.
`

const patternAnalystSystemPrompt = "You are a forensic accountant and intelligence analyst."

const patternMatchPrompt = `
# Task Context
Analyze the graph data below for the pattern "%s".

# Pattern
Description: %s
Instructions: %s

# Background Data
%s

# Immediate Task Description or Request
Return a JSON object with a "matches" list. Each match has involved_node_ids (ids from the graph data), a description explaining why it fits the pattern and a confidence between 0.0 and 1.0.
`
