// Package decode maps the {"kind", "data"} wire envelope onto the domain
// model. It reads the payload as a stream of lexer tokens and never builds an
// intermediate document tree.
package decode

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailru/easyjson/jlexer"
	"github.com/samber/lo"

	"github.com/alphabot-ai/threadline/internal/model"
)

var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrSyntax         = errors.New("malformed json")
	ErrFiltered       = errors.New("filtered by content policy")
	ErrAPI            = errors.New("api error")
)

// MismatchError reports an envelope whose kind is not valid at its position.
type MismatchError struct {
	Got  model.Kind
	Want []model.Kind
}

func (e *MismatchError) Error() string {
	want := lo.Map(e.Want, func(k model.Kind, _ int) string { return string(k) })
	return fmt.Sprintf("schema mismatch: got kind %q, want one of [%s]", e.Got, strings.Join(want, ", "))
}

func (e *MismatchError) Unwrap() error { return ErrSchemaMismatch }

// APIError carries the messages of an {"json": {"errors": [...]}} response.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	return "api error: " + strings.Join(e.Messages, "; ")
}

func (e *APIError) Unwrap() error { return ErrAPI }

type Options struct {
	// AllowNSFW keeps links and subreddits flagged as age-restricted.
	AllowNSFW bool
}

type Decoder struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		opts:   opts,
		logger: logger.With("component", "decode.Decoder"),
	}
}

var (
	infoKinds  = []model.Kind{model.KindComment, model.KindLink, model.KindSubreddit}
	replyKinds = []model.Kind{model.KindComment, model.KindMore}
)

// Thing decodes a single envelope. With no accept list every thing kind is
// valid.
func (d *Decoder) Thing(data []byte, accept ...model.Kind) (model.Thing, error) {
	in := &jlexer.Lexer{Data: data}
	set := newKindSet(accept)

	t, kind, res := d.thing(in, set)
	if err := finish(in); err != nil {
		return nil, err
	}
	switch res {
	case resultOK:
		return t, nil
	case resultFiltered:
		return nil, fmt.Errorf("%s: %w", t.Fullname(), ErrFiltered)
	default:
		return nil, &MismatchError{Got: kind, Want: set.kinds()}
	}
}

func (d *Decoder) Link(data []byte) (*model.Link, error) {
	return as[*model.Link](d.Thing(data, model.KindLink))
}

func (d *Decoder) Comment(data []byte) (*model.Comment, error) {
	return as[*model.Comment](d.Thing(data, model.KindComment))
}

func (d *Decoder) Subreddit(data []byte) (*model.Subreddit, error) {
	return as[*model.Subreddit](d.Thing(data, model.KindSubreddit))
}

func (d *Decoder) Account(data []byte) (*model.Account, error) {
	return as[*model.Account](d.Thing(data, model.KindAccount))
}

// Listing decodes a Listing envelope. Children whose kind is not accepted are
// dropped.
func (d *Decoder) Listing(data []byte, accept ...model.Kind) (*model.Listing[model.Thing], error) {
	in := &jlexer.Lexer{Data: data}
	l, kind := d.listing(in, newKindSet(accept))
	if err := finish(in); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, &MismatchError{Got: kind, Want: []model.Kind{model.KindListing}}
	}
	return l, nil
}

func (d *Decoder) LinkListing(data []byte) (*model.Listing[*model.Link], error) {
	return narrow[*model.Link](d.Listing(data, model.KindLink))
}

func (d *Decoder) SubredditListing(data []byte) (*model.Listing[*model.Subreddit], error) {
	return narrow[*model.Subreddit](d.Listing(data, model.KindSubreddit))
}

// Info decodes an info response, which may only hold comments, links and
// subreddits.
func (d *Decoder) Info(data []byte) (*model.Listing[model.Thing], error) {
	return d.Listing(data, infoKinds...)
}

// Thread decodes a comments page: a two element array holding the link
// listing and the comment listing.
func (d *Decoder) Thread(data []byte) (*model.Thread, error) {
	in := &jlexer.Lexer{Data: data}
	thread := &model.Thread{}

	var mismatch error
	i := 0
	d.array(in, func() {
		defer func() { i++ }()
		switch i {
		case 0:
			l, kind := d.listing(in, newKindSet([]model.Kind{model.KindLink}))
			if l == nil {
				mismatch = &MismatchError{Got: kind, Want: []model.Kind{model.KindListing}}
				return
			}
			if len(l.Children) > 0 {
				thread.Link = l.Children[0].(*model.Link)
			}
		case 1:
			l, kind := d.listing(in, newKindSet(replyKinds))
			if l == nil {
				mismatch = &MismatchError{Got: kind, Want: []model.Kind{model.KindListing}}
				return
			}
			thread.Replies = replies(l.Children)
		default:
			in.SkipRecursive()
		}
	})
	if err := finish(in); err != nil {
		return nil, err
	}
	if mismatch != nil {
		return nil, mismatch
	}
	if i < 2 {
		return nil, &MismatchError{Want: []model.Kind{model.KindListing}}
	}
	return thread, nil
}

// MoreChildren decodes a morechildren response into a flat list of comments
// and placeholders, each carrying its parent fullname and depth.
func (d *Decoder) MoreChildren(data []byte) ([]model.Reply, error) {
	in := &jlexer.Lexer{Data: data}

	var (
		things   []model.Reply
		messages []string
	)
	set := newKindSet(replyKinds)
	d.object(in, func(key string) {
		if key != "json" {
			in.SkipRecursive()
			return
		}
		d.object(in, func(key string) {
			switch key {
			case "errors":
				messages = apiMessages(in.Interface())
			case "data":
				d.object(in, func(key string) {
					if key != "things" {
						in.SkipRecursive()
						return
					}
					d.array(in, func() {
						t, kind, res := d.thing(in, set)
						if res != resultOK {
							d.skip(kind, res)
							return
						}
						things = append(things, t.(model.Reply))
					})
				})
			default:
				in.SkipRecursive()
			}
		})
	})
	if err := finish(in); err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return nil, &APIError{Messages: messages}
	}
	return things, nil
}

func apiMessages(v any) []string {
	entries, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, e := range entries {
		switch x := e.(type) {
		case string:
			out = append(out, x)
		case []any:
			parts := lo.FilterMap(x, func(p any, _ int) (string, bool) {
				s, ok := p.(string)
				return s, ok && s != ""
			})
			out = append(out, strings.Join(parts, ": "))
		}
	}
	return out
}

func replies(things []model.Thing) []model.Reply {
	return lo.FilterMap(things, func(t model.Thing, _ int) (model.Reply, bool) {
		r, ok := t.(model.Reply)
		return r, ok
	})
}

func as[T model.Thing](t model.Thing, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, ok := t.(T)
	if !ok {
		return zero, &MismatchError{Got: t.Kind(), Want: []model.Kind{zero.Kind()}}
	}
	return v, nil
}

func narrow[T model.Thing](l *model.Listing[model.Thing], err error) (*model.Listing[T], error) {
	if err != nil {
		return nil, err
	}
	return &model.Listing[T]{
		Before: l.Before,
		After:  l.After,
		Dist:   l.Dist,
		Children: lo.FilterMap(l.Children, func(t model.Thing, _ int) (T, bool) {
			v, ok := t.(T)
			return v, ok
		}),
	}, nil
}

func finish(in *jlexer.Lexer) error {
	in.Consumed()
	if err := in.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return nil
}
