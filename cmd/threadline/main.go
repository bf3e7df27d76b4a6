package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/k0kubun/pp"
	"github.com/urfave/cli/v3"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/client"
	"github.com/alphabot-ai/threadline/internal/decode"
	"github.com/alphabot-ai/threadline/internal/model"
	"github.com/alphabot-ai/threadline/internal/paging"
	"github.com/alphabot-ai/threadline/internal/session"
)

const version = "0.1.0"

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to a YAML config file",
	Sources: cli.EnvVars("THREADLINE_CONFIG"),
}

var logLevelFlag = &cli.StringFlag{
	Name:    "log-level",
	Aliases: []string{"l"},
	Usage:   "The level of the logs: debug, info, warn or error",
	Sources: cli.EnvVars("LOG_LEVEL"),
}

var sortFlag = &cli.StringFlag{
	Name:  "sort",
	Usage: "Sort order of listings or comments",
}

func main() {
	cmd := &cli.Command{
		Name:    "threadline",
		Usage:   "Browse paginated listings and comment threads from the terminal",
		Version: version,
		Flags:   []cli.Flag{configFlag, logLevelFlag},
		Commands: []*cli.Command{
			listingCmd,
			threadCmd,
			cursorsCmd,
			authorizeCmd,
			redirectCmd,
			loginCmd,
			appTokenCmd,
			decodeCmd,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

var listingCmd = &cli.Command{
	Name:      "listing",
	Usage:     "Show the next page of a subreddit listing",
	ArgsUsage: "[subreddit]",
	Flags: []cli.Flag{
		sortFlag,
		&cli.BoolFlag{Name: "backward", Usage: "Page towards newer items"},
		&cli.BoolFlag{Name: "reset", Usage: "Start again from the first page"},
	},
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		path := client.ListingPath(cmd.Args().First(), cmd.String("sort"))
		if cmd.Bool("reset") {
			if err := a.session.ResetListing(ctx, path); err != nil {
				return err
			}
		} else if _, err := a.session.RestoreListing(ctx, path); err != nil {
			return err
		}

		dir := paging.Forward
		if cmd.Bool("backward") {
			dir = paging.Backward
		}
		links, err := a.session.LoadListing(ctx, path, dir)
		if errors.Is(err, session.ErrExhausted) {
			fmt.Println("No more pages; use --reset to start over.")
			return nil
		}
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Printf("%6d  %-10s  %s (%d comments)\n", l.Score, l.Fullname(), l.Title, l.NumComments)
		}
		tr, err := a.session.Tracker(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("\nseen %d, after=%q before=%q\n", tr.Count, tr.After, tr.Before)
		return nil
	}),
}

var threadCmd = &cli.Command{
	Name:      "thread",
	Usage:     "Show the comments of a link",
	ArgsUsage: "<article>",
	Flags: []cli.Flag{
		sortFlag,
		&cli.IntFlag{Name: "more", Usage: "Load up to this many placeholders", Value: 0},
		&cli.DurationFlag{Name: "wait", Usage: "How long to wait for background fetches", Value: 10 * time.Second},
	},
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		article := cmd.Args().First()
		if article == "" {
			return errors.New("article id is required")
		}
		if kind, id, ok := model.SplitFullname(article); ok && kind == model.KindLink {
			article = id
		}

		link, rows, err := a.session.OpenThread(ctx, article)
		if err != nil {
			return err
		}
		if link != nil {
			fmt.Printf("%s\n%s\n\n", link.Title, link.URL)
		}

		for range int(cmd.Int("more")) {
			pos := firstMore(rows)
			if pos < 0 {
				break
			}
			if err := a.session.LoadMore(ctx, pos); err != nil {
				return err
			}
			if err := awaitEvent(ctx, a.session, cmd.Duration("wait"), session.MoreResolved); err != nil {
				return err
			}
			if rows, err = a.session.Rows(ctx); err != nil {
				return err
			}
		}
		printRows(os.Stdout, rows)
		return nil
	}),
}

var cursorsCmd = &cli.Command{
	Name:  "cursors",
	Usage: "List persisted listing positions",
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		if a.store == nil {
			return errors.New("no store configured")
		}
		cursors, err := a.store.ListCursors(ctx)
		if err != nil {
			return err
		}
		for _, c := range cursors {
			fmt.Printf("%-30s count=%-5d after=%-12s before=%-12s %s\n", c.Key, c.Count, c.After, c.Before, c.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	}),
}

var authorizeCmd = &cli.Command{
	Name:  "authorize",
	Usage: "Print the URL that grants this client access",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "implicit", Usage: "Use the implicit grant instead of the code flow"},
	},
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		flow := auth.CodeFlow
		if cmd.Bool("implicit") {
			flow = auth.ImplicitFlow
		}
		state := auth.NewState()
		fmt.Println(auth.AuthorizeURL(a.cfg.API.AuthURL, auth.AuthorizeParams{
			ClientID:    a.cfg.OAuth.ClientID,
			RedirectURI: a.cfg.OAuth.RedirectURI,
			State:       state,
			Flow:        flow,
			Scopes:      a.cfg.OAuth.Scopes,
			Permanent:   a.cfg.OAuth.Permanent && flow == auth.CodeFlow,
		}))
		fmt.Printf("\nstate: %s\n", state)
		return nil
	}),
}

var redirectCmd = &cli.Command{
	Name:      "redirect",
	Usage:     "Complete authorization with the URL the browser was redirected to",
	ArgsUsage: "<url>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "state", Usage: "State printed by authorize", Required: true},
		&cli.BoolFlag{Name: "implicit", Usage: "The redirect came from the implicit grant"},
	},
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		flow := auth.CodeFlow
		if cmd.Bool("implicit") {
			flow = auth.ImplicitFlow
		}
		tok := auth.ParseRedirect(cmd.Args().First(), cmd.String("state"), flow, time.Now())
		if tok.Status == auth.AccessCode {
			var err error
			if tok, err = a.client.ExchangeCode(ctx, tok.Code); err != nil {
				return err
			}
		}
		if tok.Status.IsError() {
			return fmt.Errorf("authorization failed: %s", tok.Status)
		}
		return saveToken(ctx, a, tok)
	}),
}

var loginCmd = &cli.Command{
	Name:  "login",
	Usage: "Log a bot account in with its registered key",
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		if a.cfg.Bot.PrivateKey == "" {
			return errors.New("THREADLINE_BOT_KEY is not set")
		}
		signer, err := auth.NewSigner(a.cfg.Bot.Alg, a.cfg.Bot.PrivateKey)
		if err != nil {
			return err
		}
		tok, err := a.client.Login(ctx, signer)
		if err != nil {
			return err
		}
		return saveToken(ctx, a, tok)
	}),
}

var appTokenCmd = &cli.Command{
	Name:  "app-token",
	Usage: "Request an application-only token for this device",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "device-id", Usage: "Device id, 20 to 30 characters", Value: auth.DoNotTrack},
	},
	Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
		tok, err := a.client.InstalledClient(ctx, cmd.String("device-id"))
		if err != nil {
			return err
		}
		return saveToken(ctx, a, tok)
	}),
}

var decodeCmd = &cli.Command{
	Name:      "decode",
	Usage:     "Decode a saved API response and dump the result",
	ArgsUsage: "<file|->",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "as", Usage: "thing, listing, thread or more", Value: "thing"},
		&cli.BoolFlag{Name: "nsfw", Usage: "Keep age-restricted items"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		data, err := readInput(cmd.Args().First())
		if err != nil {
			return err
		}
		d := decode.New(decode.Options{AllowNSFW: cmd.Bool("nsfw")}, slog.Default())

		var v any
		switch cmd.String("as") {
		case "thing":
			v, err = d.Thing(data)
		case "listing":
			v, err = d.Listing(data)
		case "thread":
			v, err = d.Thread(data)
		case "more":
			v, err = d.MoreChildren(data)
		default:
			return fmt.Errorf("unknown shape %q", cmd.String("as"))
		}
		if err != nil {
			return err
		}
		_, err = pp.Println(v)
		return err
	},
}

func saveToken(ctx context.Context, a *app, tok auth.Token) error {
	if err := a.session.Authenticate(ctx, tok); err != nil {
		return err
	}
	fmt.Printf("authorized as %q until %s (scopes: %s)\n", a.cfg.OAuth.Account, tok.Expiry.Format(time.RFC3339), strings.Join(tok.Scope, " "))
	return nil
}

func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func firstMore(rows []session.Row) int {
	for i, r := range rows {
		if r.Kind == model.KindMore {
			return i
		}
	}
	return -1
}

func awaitEvent(ctx context.Context, s *session.Session, timeout time.Duration, typ session.EventType) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return session.ErrClosed
			}
			if e.Type == session.FetchFailed {
				return e.Err
			}
			if e.Type == typ {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printRows(w io.Writer, rows []session.Row) {
	for _, r := range rows {
		indent := strings.Repeat("  ", r.Depth)
		switch {
		case r.Kind == model.KindMore && r.Count == 0:
			fmt.Fprintf(w, "%s[continue this thread]\n", indent)
		case r.Kind == model.KindMore:
			fmt.Fprintf(w, "%s[%d more]\n", indent, r.Count)
		case r.Stub:
			fmt.Fprintf(w, "%s[loading %s]\n", indent, r.Fullname)
		default:
			marker := ""
			if r.Orphan {
				marker = " (parent loading)"
			}
			fmt.Fprintf(w, "%s%s %d%s: %s\n", indent, r.Author, r.Score, marker, firstLine(r.Body))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
