package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/reminder"
)

// User-facing replies.
const (
	msgBusy           = "⚠️ Still processing your previous request... (send `%s` to cancel)"
	msgCancelled      = "✅ Cancelled. You can chat again."
	msgNothingToStop  = "ℹ️ Nothing is running."
	msgMissingPrompt  = "⚠️ Missing description. Example: `/img a cat in space`"
	msgMissingVoice   = "⚠️ Missing text. Example: `/voice good morning`"
	msgMissingQuery   = "⚠️ Missing query. Example: `/search go 1.24 release notes`"
	msgMissingClaim   = "⚠️ Missing claim. Example: `/check the great wall is visible from space`"
	msgDrawing        = "🎨 Drawing..."
	msgRecording      = "🎙️ Recording..."
	msgSearching      = "🔎 Searching..."
	msgChecking       = "🧐 Checking the facts..."
	msgReadingFile    = "📂 Reading file (max %d MB)..."
	msgLookingAtPhoto = "👁️ Looking at the image..."
	msgMemoryCleared  = "🧹 Conversation memory cleared."
	msgNoReminders    = "📭 You have no reminders."
	msgReminderUsage  = "⚠️ Wrong syntax.\nE.g. `/nn 9:30` (daily)\nE.g. `/nn 10:30/24/11 meeting` (once)"
	msgDeleteUsage    = "⚠️ Enter the id to delete. E.g. `/dtb 123456`"
	msgDeleteSent     = "🗑️ Delete sent for `%s`."
	msgStoreDown      = "❌ The reminder store is not reachable right now. Try again later."
)

const helpText = `🤖 *AI relay bot*

Just send a message, a photo or a text file and I will answer.

*Media*
/img <prompt> - draw a picture
/voice <text> - read text aloud
/search <query> - web search with a summary
/check <claim> - fact-check a claim

*Reminders*
/nn 9:30 [note] - every day at 9:30
/nn 10:30/24/11 [note] - once on 24/11 at 10:30
/bt - list your reminders
/dtb <id> - delete a reminder

*Other*
/reset - forget our conversation
%s - cancel the running request`

// userMessageFor maps a job failure to a chat reply.
func userMessageFor(err error, maxFileMB int) string {
	switch {
	case errors.Is(err, domain.ErrTooLarge):
		return fmt.Sprintf("📦 File is too large (max %d MB).", maxFileMB)
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return "📄 Unsupported file. Send a photo or a plain text file."
	case errors.Is(err, domain.ErrAllProvidersFailed), errors.Is(err, domain.ErrPoolExhausted):
		return "🚧 All providers are busy right now. Please try again in a moment."
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryTimeout:
		return "⌛ The provider took too long to answer. Please try again."
	case domain.CategoryContent:
		return "🙊 The provider returned no usable content. Try rephrasing."
	case domain.CategoryConfig:
		return "🔧 This feature is not configured."
	case domain.CategoryTransientCapacity:
		return "🚧 All providers are busy right now. Please try again in a moment."
	}
	return "❌ Error: something went wrong. Please try again."
}

func reminderErrorMessage(err error) string {
	switch {
	case errors.Is(err, reminder.ErrEmpty):
		return msgReminderUsage
	case errors.Is(err, reminder.ErrBadDate):
		return "❌ Invalid date. Use `HH:MM/DD/MM`."
	case errors.Is(err, reminder.ErrBadTime):
		return "❌ Invalid time. Use `HH:MM`."
	}
	return msgStoreDown
}

func formatReminderSaved(r domain.Reminder, loc *time.Location) string {
	kind := "One time"
	if r.Type == domain.ReminderDaily {
		kind = "Daily"
	}
	return fmt.Sprintf("✅ Reminder saved!\n⏰ At: *%s*\n📝 Note: %s\n🔄 Type: %s\n🆔 ID: `%s`",
		r.Time.In(loc).Format("15:04 02/01/2006"), r.Note, kind, r.ID)
}

func formatReminderList(items []domain.Reminder, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Reminders (%d):*\n", len(items))
	for _, r := range items {
		fmt.Fprintf(&b, "\n🆔 `%s` | ⏰ %s | 📝 %s", r.ID, r.Time.In(loc).Format("15:04 02/01"), r.Note)
	}
	b.WriteString("\n\n_Delete: /dtb <id>_")
	return b.String()
}

func formatSources(results []domain.SearchResult) string {
	var b strings.Builder
	n := 0
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		n++
		if n == 1 {
			b.WriteString("\n\n🔗 Sources:")
		}
		fmt.Fprintf(&b, "\n%d. %s", n, r.URL)
	}
	return b.String()
}

// formatSearchResults renders raw hits when no model is available to
// summarise them.
func formatSearchResults(res domain.SearchResponse) string {
	var b strings.Builder
	if res.Answer != "" {
		b.WriteString(res.Answer)
		b.WriteString("\n")
	}
	for i, r := range res.Results {
		fmt.Fprintf(&b, "\n%d. %s\n%s", i+1, r.Title, r.Snippet)
	}
	b.WriteString(formatSources(res.Results))
	return strings.TrimSpace(b.String())
}
