// Command sharelink summarizes text with an AI provider and prints share text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	sl "github.com/ineyio/sharelink"
	"github.com/ineyio/sharelink/meter"
	"github.com/ineyio/sharelink/provider/openaicompat"
	"github.com/ineyio/sharelink/quota"
	quotapg "github.com/ineyio/sharelink/quota/postgres"
	quotaredis "github.com/ineyio/sharelink/quota/redis"
	"github.com/ineyio/sharelink/settings/viperstore"
	"github.com/ineyio/sharelink/webhook/slack"
)

type options struct {
	configPath  string
	provider    string
	model       string
	apiKey      string
	mode        string
	language    string
	maxLength   int
	xMode       bool
	title       string
	url         string
	hashtags    bool
	aiHashtags  bool
	newline     bool
	format      string
	intent      string
	count       bool
	postSlack   bool
	quotaKind   string
	redisURL    string
	postgresDSN string
	verbose     bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "settings file (default: ./sharelink.yaml or $HOME/.sharelink/sharelink.yaml)")
	flag.StringVar(&o.provider, "provider", "", "provider: groq or openrouter (default from settings)")
	flag.StringVar(&o.model, "model", "", "model (default from settings)")
	flag.StringVar(&o.apiKey, "api-key", "", "API key (default from settings)")
	flag.StringVar(&o.mode, "mode", "summary", "summary, title, hashtags, raw or link")
	flag.StringVar(&o.language, "lang", "", "output language (default from settings)")
	flag.IntVar(&o.maxLength, "max", 0, "summary length limit (default from settings)")
	flag.BoolVar(&o.xMode, "x", false, "fit the summary into an X post")
	flag.StringVar(&o.title, "title", "", "page title for share text")
	flag.StringVar(&o.url, "url", "", "page URL for share text")
	flag.BoolVar(&o.hashtags, "hashtags", false, "append hashtags to the share text")
	flag.BoolVar(&o.aiHashtags, "ai-hashtags", false, "generate the share hashtags from the text")
	flag.BoolVar(&o.newline, "newline", false, "join share text with newlines")
	flag.StringVar(&o.format, "format", "simple", "link format for -mode=link: simple, simpleBreak, onlyUrl, markdown, scrapbox or backlog")
	flag.StringVar(&o.intent, "intent", "", "also print a share URL: x or facebook")
	flag.BoolVar(&o.count, "count", false, "print the character count of the output")
	flag.BoolVar(&o.postSlack, "slack", false, "post the share text to the configured Slack webhook")
	flag.StringVar(&o.quotaKind, "quota", "memory", "quota store: memory, redis or postgres")
	flag.StringVar(&o.redisURL, "redis-url", os.Getenv("REDIS_URL"), "redis URL for -quota=redis")
	flag.StringVar(&o.postgresDSN, "postgres-dsn", os.Getenv("DATABASE_URL"), "postgres DSN for -quota=postgres")
	flag.BoolVar(&o.verbose, "v", false, "log dispatch events")
	flag.Parse()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	providers := []sl.Provider{openaicompat.NewGroq(), openaicompat.NewOpenRouter()}
	if err := run(context.Background(), o, providers, flag.Args(), os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("sharelink failed", "error", meter.Redact(err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, providers []sl.Provider, args []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	pageURL := sl.CleanAmazonURL(o.url)

	if o.mode == "link" {
		format, err := sl.ParseLinkFormat(o.format)
		if err != nil {
			return err
		}
		if o.url == "" {
			return errors.New("-mode=link needs -url")
		}
		return printOutput(stdout, o, sl.FormatLink(o.title, pageURL, format), "")
	}

	store, err := viperstore.New(o.configPath)
	if err != nil {
		return err
	}
	settings, err := store.Settings(ctx)
	if err != nil {
		return err
	}

	provider, err := sl.ParseProviderName(o.provider)
	if err != nil {
		return err
	}

	qs, closeQuota, err := openQuotaStore(ctx, o)
	if err != nil {
		return err
	}
	defer closeQuota()

	var m sl.Meter = &meter.NoopMeter{}
	if o.verbose {
		m = meter.NewLogMeter(logger)
	}

	d, err := sl.NewDispatcher(
		providers,
		sl.WithSettings(store),
		sl.WithQuotaStore(qs),
		sl.WithMeter(m),
		sl.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer d.Wait()

	text, err := readInput(args, stdin)
	if err != nil {
		return err
	}

	cfg := sl.ProviderConfig{Provider: provider, APIKey: o.apiKey, Model: o.model}
	language := o.language
	if language == "" {
		language = settings.Language()
	}

	shareOpts := sl.ShareOptions{
		Title:    o.title != "",
		Hashtags: o.hashtags,
		Newline:  o.newline,
	}
	var st sl.ShareState
	sharing := o.url != "" && o.mode == "summary"

	if sharing && o.hashtags && o.aiHashtags {
		tags, err := d.Hashtags(ctx, text, language, cfg)
		if err != nil {
			logger.Warn("hashtag generation failed", "error", meter.Redact(err.Error()))
		} else {
			st.SetHashtags(tags)
		}
	}

	var result string
	switch o.mode {
	case "summary":
		maxLength := o.maxLength
		if maxLength == 0 {
			maxLength = settings.MaxLength()
		}
		if o.xMode {
			maxLength = st.XSummaryBudget(o.title, shareOpts)
		}
		result, err = d.Summarize(ctx, text, language, maxLength, cfg)
	case "title":
		result, err = d.CatchyTitle(ctx, text, language, cfg)
	case "hashtags":
		result, err = d.Hashtags(ctx, text, language, cfg)
	case "raw":
		result, err = d.Dispatch(ctx, text, cfg)
	default:
		return fmt.Errorf("unknown mode %q", o.mode)
	}
	if err != nil {
		return err
	}

	out := result
	if sharing {
		st.SetSummary(result, o.xMode)
		shareOpts.Summary = !o.xMode
		shareOpts.SummaryX = o.xMode
		out = st.Compose(o.title, pageURL, shareOpts)
	}

	summary := ""
	if o.mode == "summary" {
		summary = result
	}
	if err := printOutput(stdout, o, out, summary); err != nil {
		return err
	}

	if o.postSlack {
		if err := slack.New().Post(ctx, settings.SlackWebhookURL, out); err != nil {
			return err
		}
	}

	d.Wait()
	for _, p := range []sl.ProviderName{sl.ProviderGroq, sl.ProviderOpenRouter} {
		sample, ok, err := qs.Remaining(ctx, p)
		if err != nil {
			logger.Warn("read quota", "provider", p, "error", err)
			continue
		}
		if ok {
			logger.Info("quota", "key", sl.QuotaKey(p), "remaining", sample.Remaining)
		}
	}
	return nil
}

// printOutput writes out, then the optional character count and share URL.
func printOutput(w io.Writer, o options, out, summary string) error {
	fmt.Fprintln(w, out)
	if o.count {
		fmt.Fprintf(w, "chars: %d\n", sl.CharCount(out))
	}

	switch o.intent {
	case "":
	case "x":
		if o.url == "" {
			return errors.New("-intent needs -url")
		}
		fmt.Fprintln(w, sl.XIntentURL(summary, o.title, sl.CleanAmazonURL(o.url)))
	case "facebook":
		if o.url == "" {
			return errors.New("-intent needs -url")
		}
		fmt.Fprintln(w, sl.FacebookShareURL(sl.CleanAmazonURL(o.url)))
	default:
		return fmt.Errorf("unknown intent %q", o.intent)
	}
	return nil
}

func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("no input text: pass it as arguments or on stdin")
	}
	return text, nil
}

func openQuotaStore(ctx context.Context, o options) (sl.QuotaStore, func(), error) {
	switch o.quotaKind {
	case "", "memory":
		return quota.NewMemoryQuotaStore(), func() {}, nil
	case "redis":
		if o.redisURL == "" {
			return nil, nil, errors.New("-quota=redis needs -redis-url or REDIS_URL")
		}
		s, err := quotaredis.NewFromURL(o.redisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		if o.postgresDSN == "" {
			return nil, nil, errors.New("-quota=postgres needs -postgres-dsn or DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, o.postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := quotapg.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown quota store %q", o.quotaKind)
	}
}
