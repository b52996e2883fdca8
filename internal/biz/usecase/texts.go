package usecase

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// Texts holds the user and staff facing messages. Fields marked HTML are
// sent with HTML markup.
type Texts struct {
	Greeting        string
	SentToSupport   string // HTML
	OpenFailed      string
	UserUndelivered string
	NoOpenTicket    string
	Farewell        string
	Sorry           string
	CloseFailed     string
	ClearRefused    string

	UserClosedBySupport  string // HTML
	UserClosedInactivity string // HTML

	EmptyStaffMessage string
	NoUserForThread   string
	ClosedBySupport   string
	NoActiveThreads   string
}

// DefaultTexts returns the built-in English texts
func DefaultTexts() Texts {
	return Texts{
		Greeting:        "👋 Hello!\nPlease describe your problem.",
		SentToSupport:   "<b>Your message has been sent to support.</b>\nPlease wait for a reply...",
		OpenFailed:      "⚠️ We couldn't open a support request right now. Please try again in a few minutes.",
		UserUndelivered: "⚠️ Your message could not be delivered to support. Please try again.",
		NoOpenTicket:    "ℹ️ You have no open requests.",
		Farewell:        "If you have any new questions, just write to me.",
		Sorry:           "❌ I'm truly sorry I couldn't help you.\nIf you have any new questions, just write to me.",
		CloseFailed:     "⚠️ Your request could not be closed right now. Please try again.",
		ClearRefused:    "⚠️ You can't clear the chat while your request is being handled.\nClose it first using the buttons below 👇",

		UserClosedBySupport:  "🛑 <b>Your request was closed by support.</b>\nIf you have any new questions, just write to me.",
		UserClosedInactivity: "🛑 <b>Your request was closed due to inactivity.</b>\nIf you have any new questions, just write to me.",

		EmptyStaffMessage: "⚠️ Empty message was not sent to the user.",
		NoUserForThread:   "❌ No user found for this thread.",
		ClosedBySupport:   "🛑 Closed by support.",
		NoActiveThreads:   "📭 No active threads.",
	}
}

// WithDefaults returns a copy of t with empty fields taken from DefaultTexts
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Greeting, d.Greeting)
	fill(&t.SentToSupport, d.SentToSupport)
	fill(&t.OpenFailed, d.OpenFailed)
	fill(&t.UserUndelivered, d.UserUndelivered)
	fill(&t.NoOpenTicket, d.NoOpenTicket)
	fill(&t.Farewell, d.Farewell)
	fill(&t.Sorry, d.Sorry)
	fill(&t.CloseFailed, d.CloseFailed)
	fill(&t.ClearRefused, d.ClearRefused)
	fill(&t.UserClosedBySupport, d.UserClosedBySupport)
	fill(&t.UserClosedInactivity, d.UserClosedInactivity)
	fill(&t.EmptyStaffMessage, d.EmptyStaffMessage)
	fill(&t.NoUserForThread, d.NoUserForThread)
	fill(&t.ClosedBySupport, d.ClosedBySupport)
	fill(&t.NoActiveThreads, d.NoActiveThreads)
	return t
}

const (
	separator       = "━━━━━━━━━━━━━━━"
	timeLayout      = "2006-01-02 15:04:05"
	maxThreadTitle  = 128
	unknownDuration = "unknown"
)

// status is the presentation of a close result
type status struct {
	emoji  string
	text   string
	header string
}

func closeStatus(by domain.ClosedBy, outcome domain.Outcome) status {
	switch {
	case outcome == domain.OutcomeResolved:
		return status{"✅", "Issue resolved", "ISSUE RESOLVED"}
	case outcome == domain.OutcomeUnresolved:
		return status{"❌", "Issue not resolved", "ISSUE NOT RESOLVED"}
	case by == domain.ClosedBySystem:
		return status{"🕒", "Closed due to inactivity", "CLOSED DUE TO INACTIVITY"}
	default:
		return status{"🛑", "Closed by support", "CLOSED BY SUPPORT"}
	}
}

func threadTitle(from domain.Sender) string {
	title := "ID " + string(from.UserID)
	if name := strings.TrimSpace(from.FirstName); name != "" {
		title = name + " · " + title
	}
	if utf8.RuneCountInString(title) > maxThreadTitle {
		title = string([]rune(title)[:maxThreadTitle])
	}
	return title
}

// ThreadURL links to a forum topic of a private supergroup
func ThreadURL(group domain.ChatID, thread domain.ThreadID) string {
	id := strings.TrimPrefix(strconv.FormatInt(int64(group), 10), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, int(thread))
}

func profile(username string) string {
	if username == "" {
		return "no username"
	}
	return "@" + html.EscapeString(username)
}

func displayName(name string) string {
	if name == "" {
		return "User"
	}
	return html.EscapeString(name)
}

func userBlock(t *domain.Ticket) string {
	return fmt.Sprintf("👤 Name: %s\n🆔 ID: <code>%s</code>\n💬 Profile: %s\n",
		displayName(t.UserName), html.EscapeString(string(t.UserID)), profile(t.Username))
}

func cardText(t *domain.Ticket) string {
	var b strings.Builder
	b.WriteString("👤 <b>User card</b>\n")
	b.WriteString(separator + "\n")
	b.WriteString(userBlock(t))
	b.WriteString("\n")
	fmt.Fprintf(&b, "🕒 Opened: %s\n", t.OpenedAt.Format(timeLayout))
	b.WriteString(separator)
	return b.String()
}

func noticeText(t *domain.Ticket, link string) string {
	var b strings.Builder
	b.WriteString("🆕 <b>NEW TICKET</b>\n")
	b.WriteString(separator + "\n")
	b.WriteString(userBlock(t))
	b.WriteString("\n")
	fmt.Fprintf(&b, "📂 Thread: <a href='%s'>#%d</a>\n\n", link, int(t.ThreadID))
	fmt.Fprintf(&b, "🕒 Opened: %s\n", t.OpenedAt.Format(timeLayout))
	b.WriteString(separator)
	return b.String()
}

func closedNoticeText(t *domain.Ticket, link string, st status, duration string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n", st.emoji, st.header)
	b.WriteString(separator + "\n")
	b.WriteString(userBlock(t))
	b.WriteString("\n")
	fmt.Fprintf(&b, "📂 Thread: <a href='%s'>#%d</a>\n\n", link, int(t.ThreadID))
	fmt.Fprintf(&b, "📊 Status: %s %s\n", st.emoji, st.text)
	fmt.Fprintf(&b, "🕒 Resolution time: %s\n", duration)
	b.WriteString(separator)
	return b.String()
}

func closureLine(st status) string {
	return st.emoji + " " + st.text + "."
}

func closeDuration(openedAt, closedAt time.Time) string {
	if openedAt.IsZero() {
		return unknownDuration
	}
	return domain.FormatDuration(closedAt.Sub(openedAt))
}

func topicsText(open []OpenTicket, empty string) string {
	if len(open) == 0 {
		return empty
	}
	lines := []string{fmt.Sprintf("👥 Active threads: %d", len(open))}
	for _, o := range open {
		line := fmt.Sprintf("• User <code>%s</code> → thread #%d",
			html.EscapeString(string(o.Session.UserID)), int(o.Session.ThreadID))
		if o.Ticket != nil && o.Ticket.UserName != "" {
			line += " (" + html.EscapeString(o.Ticket.UserName) + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func staffUndeliveredText(err error) string {
	kind := domain.DeliveryKindOf(err)
	switch kind {
	case domain.DeliveryForbidden:
		return "⚠️ Message was not delivered: the user has blocked the bot."
	case "":
		return "⚠️ Message was not delivered to the user."
	}
	return fmt.Sprintf("⚠️ Message was not delivered to the user (%s).", kind)
}

func staffCloseFailedText(err error) string {
	return fmt.Sprintf("⚠️ Failed to close the thread: %s", html.EscapeString(err.Error()))
}
