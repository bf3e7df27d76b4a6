package decode

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mailru/easyjson/jlexer"

	"github.com/alphabot-ai/threadline/internal/model"
)

type result int

const (
	resultOK result = iota
	resultEmpty
	resultMismatch
	resultFiltered
	resultBroken
)

func (r result) String() string {
	switch r {
	case resultOK:
		return "ok"
	case resultEmpty:
		return "empty"
	case resultMismatch:
		return "unexpected_kind"
	case resultFiltered:
		return "filtered"
	default:
		return "broken"
	}
}

var thingKinds = []model.Kind{
	model.KindComment, model.KindAccount, model.KindLink, model.KindSubreddit, model.KindMore,
}

// kindSet is the whitelist of envelope kinds valid at one position.
type kindSet map[model.Kind]struct{}

func newKindSet(kinds []model.Kind) kindSet {
	if len(kinds) == 0 {
		kinds = thingKinds
	}
	set := make(kindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

func (s kindSet) has(k model.Kind) bool {
	_, ok := s[k]
	return ok
}

func (s kindSet) kinds() []model.Kind {
	out := make([]model.Kind, 0, len(s))
	for _, k := range thingKinds {
		if s.has(k) {
			out = append(out, k)
		}
	}
	return out
}

// object walks the members of a JSON object. fn must consume the value of
// every key it is handed. A value that is not an object is skipped.
func (d *Decoder) object(in *jlexer.Lexer, fn func(key string)) bool {
	if in.IsNull() {
		in.Skip()
		return false
	}
	if !in.IsDelim('{') {
		in.SkipRecursive()
		return false
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		fn(key)
		in.WantComma()
	}
	in.Delim('}')
	return true
}

// array walks the elements of a JSON array. A value that is not an array is
// skipped.
func (d *Decoder) array(in *jlexer.Lexer, fn func()) bool {
	if in.IsNull() {
		in.Skip()
		return false
	}
	if !in.IsDelim('[') {
		in.SkipRecursive()
		return false
	}
	in.Delim('[')
	for !in.IsDelim(']') {
		fn()
		in.WantComma()
	}
	in.Delim(']')
	return true
}

// envelope reads {"kind": ..., "data": ...} with the members in either
// order. When data arrives first its raw bytes are held until the kind is
// known. fn is called at most once.
func (d *Decoder) envelope(in *jlexer.Lexer, fn func(in *jlexer.Lexer, kind model.Kind)) (model.Kind, result) {
	var (
		kind    model.Kind
		pending []byte
		called  bool
		broken  bool
	)
	isObject := d.object(in, func(key string) {
		switch key {
		case "kind":
			if s, ok := in.Interface().(string); ok {
				kind = model.Kind(s)
			}
		case "data":
			if kind == "" {
				pending = bytes.Clone(in.Raw())
				return
			}
			fn(in, kind)
			called = true
		default:
			in.SkipRecursive()
		}
	})
	if !isObject {
		return "", resultEmpty
	}
	if pending != nil && kind != "" {
		sub := &jlexer.Lexer{Data: pending}
		fn(sub, kind)
		called = true
		if sub.Error() != nil {
			broken = true
		}
	}
	switch {
	case broken:
		return kind, resultBroken
	case !called:
		return kind, resultEmpty
	}
	return kind, resultOK
}

// thing decodes one enveloped item. Kinds outside accept are skipped and
// reported as a mismatch.
func (d *Decoder) thing(in *jlexer.Lexer, accept kindSet) (model.Thing, model.Kind, result) {
	var t model.Thing
	kind, res := d.envelope(in, func(in *jlexer.Lexer, kind model.Kind) {
		if !accept.has(kind) {
			in.SkipRecursive()
			return
		}
		switch kind {
		case model.KindLink:
			t = d.link(in)
		case model.KindComment:
			t = d.comment(in)
		case model.KindMore:
			t = d.more(in)
		case model.KindSubreddit:
			t = d.subreddit(in)
		case model.KindAccount:
			t = d.account(in)
		default:
			in.SkipRecursive()
		}
	})
	if res == resultBroken {
		return nil, kind, res
	}
	if t == nil {
		if kind == "" && res == resultEmpty {
			return nil, kind, resultEmpty
		}
		return nil, kind, resultMismatch
	}
	if !d.opts.AllowNSFW && restricted(t) {
		return t, kind, resultFiltered
	}
	return t, kind, resultOK
}

func restricted(t model.Thing) bool {
	switch v := t.(type) {
	case *model.Link:
		return v.Over18
	case *model.Subreddit:
		return v.Over18
	}
	return false
}

// listing decodes a Listing envelope, keeping the accepted children in wire
// order.
func (d *Decoder) listing(in *jlexer.Lexer, accept kindSet) (*model.Listing[model.Thing], model.Kind) {
	var l *model.Listing[model.Thing]
	kind, _ := d.envelope(in, func(in *jlexer.Lexer, kind model.Kind) {
		if kind != model.KindListing {
			in.SkipRecursive()
			return
		}
		l = d.listingData(in, accept)
	})
	return l, kind
}

func (d *Decoder) listingData(in *jlexer.Lexer, accept kindSet) *model.Listing[model.Thing] {
	l := &model.Listing[model.Thing]{}
	f := d.fields(in, model.KindListing)

	dist, wire := -1, 0
	d.object(in, func(key string) {
		switch key {
		case "before":
			l.Before = f.str(key)
		case "after":
			l.After = f.str(key)
		case "dist":
			if in.IsNull() {
				in.Skip()
				return
			}
			dist = f.int(key)
		case "children":
			d.array(in, func() {
				wire++
				t, kind, res := d.thing(in, accept)
				if res != resultOK {
					d.skip(kind, res)
					return
				}
				l.Children = append(l.Children, t)
			})
		default:
			in.SkipRecursive()
		}
	})
	if dist < 0 {
		dist = wire
	}
	l.Dist = dist
	return l
}

func (d *Decoder) skip(kind model.Kind, res result) {
	if res == resultEmpty && kind == "" {
		return
	}
	skipped.WithLabelValues(string(kind), res.String()).Inc()
	d.logger.Debug("skipped element", "kind", kind, "reason", res.String())
}

// fields coerces scalar member values. A value of the wrong type falls back
// to the zero value and is counted, so one bad field never fails its item.
type fields struct {
	d    *Decoder
	in   *jlexer.Lexer
	kind model.Kind
}

func (d *Decoder) fields(in *jlexer.Lexer, kind model.Kind) fields {
	return fields{d: d, in: in, kind: kind}
}

func (f fields) malformed(key string, v any) {
	// key may alias the input buffer; the metric keeps its labels.
	key = strings.Clone(key)
	malformedFields.WithLabelValues(string(f.kind), key).Inc()
	f.d.logger.Debug("malformed field", "kind", f.kind, "field", key, "value", v)
}

func (f fields) str(key string) string {
	switch v := f.in.Interface().(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		f.malformed(key, v)
		return ""
	}
}

func (f fields) int(key string) int {
	switch v := f.in.Interface().(type) {
	case nil:
		return 0
	case float64:
		return int(v)
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return int(n)
		}
		f.malformed(key, v)
		return 0
	default:
		f.malformed(key, v)
		return 0
	}
}

func (f fields) float(key string) float64 {
	switch v := f.in.Interface().(type) {
	case nil:
		return 0
	case float64:
		return v
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
		f.malformed(key, v)
		return 0
	default:
		f.malformed(key, v)
		return 0
	}
}

func (f fields) bool(key string) bool {
	switch v := f.in.Interface().(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		f.malformed(key, v)
		return false
	default:
		f.malformed(key, v)
		return false
	}
}

// time reads a seconds-since-epoch value. false and 0 mean no timestamp.
func (f fields) time(key string) time.Time {
	var secs float64
	switch v := f.in.Interface().(type) {
	case nil:
		return time.Time{}
	case bool:
		if v {
			f.malformed(key, v)
		}
		return time.Time{}
	case float64:
		secs = v
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			f.malformed(key, v)
			return time.Time{}
		}
		secs = n
	default:
		f.malformed(key, v)
		return time.Time{}
	}
	if secs <= 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// vote maps the wire likes flag: true, false or null.
func (f fields) vote(key string) model.Vote {
	switch v := f.in.Interface().(type) {
	case nil:
		return model.NoVote
	case bool:
		if v {
			return model.Upvote
		}
		return model.Downvote
	default:
		f.malformed(key, v)
		return model.NoVote
	}
}

func (f fields) strings(key string) []string {
	switch v := f.in.Interface().(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				f.malformed(key, e)
				continue
			}
			out = append(out, s)
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	default:
		f.malformed(key, v)
		return nil
	}
}

// identity fills in whichever of id and fullname the wire left out.
func identity(id *model.Identity, kind model.Kind) {
	switch {
	case id.Name == "" && id.ID != "":
		id.Name = model.Fullname(kind, id.ID)
	case id.ID == "" && id.Name != "":
		if _, local, ok := model.SplitFullname(id.Name); ok {
			id.ID = local
		}
	}
}
