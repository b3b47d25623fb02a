package backend

// Model priority lists: index 0 is the preferred default, later entries are
// fallbacks a user can select by priority index.

var GroqModelPriority = []string{
	"openai/gpt-oss-20b",
	"qwen/qwen3-32b",
	"gemma2-9b-it",
	"llama-3.3-70b-versatile",
	"meta-llama/llama-4-maverick-17b-128e-instruct",
	"moonshotai/kimi-k2-instruct",
	"openai/gpt-oss-120b",
	"deepseek-r1-distill-llama-70b",
}

var GeminiModelPriority = []string{
	"gemini-3-flash-preview",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

// PickModel selects the model at the given priority index. An out-of-range
// index falls back to the first entry; the second return value reports
// whether a fallback happened.
func PickModel(priority []string, index int) (string, bool) {
	if len(priority) == 0 {
		return "", false
	}
	if index < 0 || index >= len(priority) {
		return priority[0], true
	}
	return priority[index], false
}
