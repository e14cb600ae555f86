package sharelink

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ShareHashtag is appended when hashtags are enabled.
const ShareHashtag = "#URLCopyAndShare"

// Lengths X counts for the fixed parts of a post.
const (
	xPostLimit     = 140
	xURLLength     = 23
	xHashtagLength = 16
	xSeparators    = 4
	xMinSummary    = 10
)

// ShareOptions selects which parts go into the share text.
type ShareOptions struct {
	Summary  bool
	SummaryX bool
	Title    bool
	Hashtags bool
	Newline  bool
}

// ShareState holds the AI output produced for one page. It is owned by a
// single caller and is not safe for concurrent use.
type ShareState struct {
	Summary  string
	SummaryX string
	// Hashtags replaces ShareHashtag in the share text when set.
	Hashtags string
}

// SetHashtags stores generated hashtags.
func (st *ShareState) SetHashtags(tags string) {
	st.Hashtags = strings.TrimSpace(tags)
}

func (st *ShareState) hashtags() string {
	if st.Hashtags != "" {
		return st.Hashtags
	}
	return ShareHashtag
}

// SetSummary stores a summary. X-mode summaries are kept separately.
func (st *ShareState) SetSummary(text string, xMode bool) {
	if xMode {
		st.SummaryX = text
		return
	}
	st.Summary = text
}

// Compose builds the share text for a page.
func (st *ShareState) Compose(title, pageURL string, opts ShareOptions) string {
	var parts []string

	if opts.Summary && st.Summary != "" {
		parts = append(parts, st.Summary)
		if opts.Title || opts.SummaryX {
			parts = append(parts, "-")
		}
	}

	if opts.SummaryX && st.SummaryX != "" {
		parts = append(parts, st.SummaryX)
		if opts.Title {
			parts = append(parts, "-")
		}
	}

	if opts.Title {
		parts = append(parts, title)
	}

	parts = append(parts, pageURL)

	if opts.Hashtags {
		parts = append(parts, st.hashtags())
	}

	sep := " "
	if opts.Newline {
		sep = "\n"
	}
	return strings.Join(parts, sep)
}

// CharCount returns the number of characters in text.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// XSummaryBudget returns the summary length that keeps an X post within its
// limit, given the other parts that will be included.
func XSummaryBudget(title string, opts ShareOptions) int {
	return xSummaryBudget(title, xHashtagLength, opts)
}

// XSummaryBudget is like the package function but counts the stored
// hashtags instead of ShareHashtag.
func (st *ShareState) XSummaryBudget(title string, opts ShareOptions) int {
	return xSummaryBudget(title, CharCount(st.hashtags()), opts)
}

func xSummaryBudget(title string, hashtagLen int, opts ShareOptions) int {
	fixed := xURLLength + xSeparators
	if opts.Hashtags {
		fixed += hashtagLen
	}
	if opts.Title {
		fixed += utf8.RuneCountInString(title)
	}
	return max(xMinSummary, xPostLimit-fixed-2)
}

// IsShareable reports whether a page URL can be summarized and shared.
func IsShareable(pageURL string) bool {
	return strings.HasPrefix(pageURL, "http")
}

// LinkFormat is a text format for a page title and URL.
type LinkFormat string

const (
	FormatSimple      LinkFormat = "simple"
	FormatSimpleBreak LinkFormat = "simpleBreak"
	FormatOnlyURL     LinkFormat = "onlyUrl"
	FormatMarkdown    LinkFormat = "markdown"
	FormatScrapbox    LinkFormat = "scrapbox"
	FormatBacklog     LinkFormat = "backlog"
)

// LinkFormats lists every supported format.
var LinkFormats = []LinkFormat{
	FormatSimple, FormatSimpleBreak, FormatOnlyURL, FormatMarkdown, FormatScrapbox, FormatBacklog,
}

// ParseLinkFormat converts a user-supplied name into a LinkFormat.
// The empty string means FormatSimple.
func ParseLinkFormat(s string) (LinkFormat, error) {
	if s == "" {
		return FormatSimple, nil
	}
	for _, f := range LinkFormats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatLink renders title and pageURL in the given format. Unknown formats
// render as FormatSimple.
func FormatLink(title, pageURL string, f LinkFormat) string {
	switch f {
	case FormatScrapbox:
		return "[" + title + " " + pageURL + "]"
	case FormatMarkdown:
		return "[" + title + "](" + pageURL + ")"
	case FormatBacklog:
		return "[[" + title + ":" + pageURL + "]]"
	case FormatOnlyURL:
		return pageURL
	case FormatSimpleBreak:
		return title + "\n" + pageURL
	default:
		return title + " " + pageURL
	}
}

// XIntentURL returns the X post-intent URL for a page. A non-empty summary
// goes on its own line before the title.
func XIntentURL(summary, title, pageURL string) string {
	text := title
	if summary != "" {
		text = summary + "\n" + title
	}
	q := url.Values{}
	q.Set("text", text)
	q.Set("url", pageURL)
	return "https://twitter.com/intent/tweet?" + q.Encode()
}

// FacebookShareURL returns the Facebook sharer URL for a page.
func FacebookShareURL(pageURL string) string {
	q := url.Values{}
	q.Set("u", pageURL)
	return "https://www.facebook.com/sharer/sharer.php?" + q.Encode()
}

const amazonHost = "www.amazon.co.jp"

var (
	amazonDPMatch   = regexp.MustCompile(`/dp/[A-Za-z0-9]`)
	amazonDPReplace = regexp.MustCompile(`^(\S+)(/dp/[A-Za-z0-9]{10})(.*)$`)
)

// CleanAmazonURL reduces an Amazon product URL to origin + /dp/<ASIN>.
// Other URLs are returned unchanged.
func CleanAmazonURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != amazonHost || !amazonDPMatch.MatchString(u.Path) {
		return raw
	}
	origin := u.Scheme + "://" + u.Host
	return origin + amazonDPReplace.ReplaceAllString(u.Path, "$2")
}

// Availability says which share actions can be used.
type Availability struct {
	ShowAI bool
	ShowQR bool

	// Providers lists the providers that have a stored key.
	Providers []ProviderName
	// Selected is the provider the summarize action will use.
	Selected ProviderName

	Summarize      bool
	SummaryOption  bool
	SummaryXOption bool
	HashtagsOption bool
}

// Availability derives the enabled actions from the settings, the selected
// provider and whether the page can be shared. If the selected provider has
// no key, the first provider with one is selected instead.
func (st *ShareState) Availability(s Settings, selected ProviderName, shareable bool) Availability {
	a := Availability{
		ShowAI:         s.AIVisible(),
		ShowQR:         s.QRVisible(),
		SummaryOption:  shareable && st.Summary != "",
		SummaryXOption: shareable && st.SummaryX != "",
		HashtagsOption: shareable,
	}

	for _, p := range []ProviderName{ProviderGroq, ProviderOpenRouter} {
		if s.APIKey(p) != "" {
			a.Providers = append(a.Providers, p)
		}
	}

	if selected == "" {
		selected = s.Provider()
	}
	a.Selected = selected
	if s.APIKey(selected) == "" && len(a.Providers) > 0 {
		a.Selected = a.Providers[0]
	}

	a.Summarize = shareable && s.APIKey(a.Selected) != ""
	return a
}
