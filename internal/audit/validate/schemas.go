package validate

// JSON Schema documents for the LLM-produced stage outputs. These catch
// structural drift (wrong types, missing containers); the semantic rules that
// schemas cannot express live in validate.go.

const gatherSignalsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "url": {"type": "string", "minLength": 1},
          "signals": {"type": "array"},
          "source_quality": {"type": "string"}
        },
        "required": ["url"]
      }
    }
  },
  "required": ["sources"]
}`

const verifyFactsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "fact_checks": {"type": "array"},
    "red_flags": {"type": "array"},
    "checks": {"type": "array"},
    "discrepancies": {"type": "array"}
  }
}`

const verdictSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "truth_index": {"type": "number"},
    "interpretation": {"type": "string", "minLength": 1},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "limitations": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["truth_index", "interpretation", "strengths", "limitations"]
}`
