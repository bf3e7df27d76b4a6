package decode

import (
	"time"

	"github.com/mailru/easyjson/jlexer"

	"github.com/alphabot-ai/threadline/internal/model"
)

func (d *Decoder) link(in *jlexer.Lexer) *model.Link {
	l := &model.Link{}
	f := d.fields(in, model.KindLink)
	var createdLocal time.Time

	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			l.ID = f.str(key)
		case "name":
			l.Name = f.str(key)
		case "created_utc":
			l.CreatedAt = f.time(key)
		case "created":
			createdLocal = f.time(key)
		case "title":
			l.Title = f.str(key)
		case "author":
			l.Author = f.str(key)
		case "subreddit":
			l.Subreddit = f.str(key)
		case "subreddit_id":
			l.SubredditID = f.str(key)
		case "url":
			l.URL = unescape(f.str(key))
		case "permalink":
			l.Permalink = f.str(key)
		case "domain":
			l.Domain = f.str(key)
		case "selftext":
			l.Selftext = f.str(key)
		case "selftext_html":
			l.SelftextHTML = f.str(key)
		case "score":
			l.Score = f.int(key)
		case "upvote_ratio":
			l.UpvoteRatio = f.float(key)
		case "num_comments":
			l.NumComments = f.int(key)
		case "over_18":
			l.Over18 = f.bool(key)
		case "spoiler":
			l.Spoiler = f.bool(key)
		case "stickied":
			l.Stickied = f.bool(key)
		case "locked":
			l.Locked = f.bool(key)
		case "archived":
			l.Archived = f.bool(key)
		case "is_self":
			l.IsSelf = f.bool(key)
		case "is_video":
			l.IsVideo = f.bool(key)
		case "saved":
			l.Saved = f.bool(key)
		case "hidden":
			l.Hidden = f.bool(key)
		case "thumbnail":
			l.Thumbnail = unescape(f.str(key))
		case "thumbnail_width":
			l.ThumbnailWidth = f.int(key)
		case "thumbnail_height":
			l.ThumbnailHeight = f.int(key)
		case "edited":
			l.Edited = f.time(key)
		case "likes":
			l.Likes = f.vote(key)
		case "link_flair_text":
			l.LinkFlairText = f.str(key)
		case "author_flair_text":
			l.AuthorFlairText = f.str(key)
		case "distinguished":
			l.Distinguished = f.str(key)
		case "gilded":
			l.Gilded = f.int(key)
		case "suggested_sort":
			l.SuggestedSort = f.str(key)
		case "preview":
			l.Preview = d.preview(in)
		case "secure_media":
			if m := d.media(in); m != nil {
				l.Media = m
			}
		case "media":
			if m := d.media(in); m != nil && l.Media == nil {
				l.Media = m
			}
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = createdLocal
	}
	identity(&l.Identity, model.KindLink)
	return l
}

func (d *Decoder) comment(in *jlexer.Lexer) *model.Comment {
	c := &model.Comment{}
	f := d.fields(in, model.KindComment)
	var (
		createdLocal time.Time
		nested       []model.Reply
	)

	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			c.ID = f.str(key)
		case "name":
			c.Name = f.str(key)
		case "created_utc":
			c.CreatedAt = f.time(key)
		case "created":
			createdLocal = f.time(key)
		case "author":
			c.Author = f.str(key)
		case "body":
			c.Body = f.str(key)
		case "body_html":
			c.BodyHTML = f.str(key)
		case "score":
			c.Score = f.int(key)
		case "score_hidden":
			c.ScoreHidden = f.bool(key)
		case "parent_id":
			c.ParentID = f.str(key)
		case "link_id":
			c.LinkID = f.str(key)
		case "link_title":
			c.LinkTitle = f.str(key)
		case "subreddit":
			c.Subreddit = f.str(key)
		case "permalink":
			c.Permalink = f.str(key)
		case "depth":
			c.Depth = f.int(key)
		case "edited":
			c.Edited = f.time(key)
		case "likes":
			c.Likes = f.vote(key)
		case "saved":
			c.Saved = f.bool(key)
		case "stickied":
			c.Stickied = f.bool(key)
		case "archived":
			c.Archived = f.bool(key)
		case "locked":
			c.Locked = f.bool(key)
		case "collapsed":
			c.Collapsed = f.bool(key)
		case "is_submitter":
			c.IsSubmitter = f.bool(key)
		case "distinguished":
			c.Distinguished = f.str(key)
		case "controversiality":
			c.Controversiality = f.int(key)
		case "gilded":
			c.Gilded = f.int(key)
		case "author_flair_text":
			c.AuthorFlairText = f.str(key)
		case "replies":
			// An empty string stands for "no replies".
			if l, _ := d.listing(in, newKindSet(replyKinds)); l != nil {
				nested = replies(l.Children)
			}
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = createdLocal
	}
	identity(&c.Identity, model.KindComment)
	for _, r := range nested {
		c.Attach(r)
	}
	return c
}

// more decodes a placeholder. Its id is the first hidden child, so its
// fullname carries the comment tag.
func (d *Decoder) more(in *jlexer.Lexer) *model.More {
	m := &model.More{}
	f := d.fields(in, model.KindMore)

	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			m.ID = f.str(key)
		case "name":
			m.Name = f.str(key)
		case "parent_id":
			m.ParentID = f.str(key)
		case "depth":
			m.Depth = f.int(key)
		case "count":
			m.Count = f.int(key)
		case "children":
			m.Children = f.strings(key)
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	identity(&m.Identity, model.KindComment)
	return m
}

func (d *Decoder) subreddit(in *jlexer.Lexer) *model.Subreddit {
	s := &model.Subreddit{}
	f := d.fields(in, model.KindSubreddit)

	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			s.ID = f.str(key)
		case "name":
			s.Name = f.str(key)
		case "created_utc":
			s.CreatedAt = f.time(key)
		case "display_name":
			s.DisplayName = f.str(key)
		case "display_name_prefixed":
			s.DisplayNamePrefixed = f.str(key)
		case "title":
			s.Title = f.str(key)
		case "public_description":
			s.PublicDescription = f.str(key)
		case "description":
			s.Description = f.str(key)
		case "subscribers":
			s.Subscribers = f.int(key)
		case "active_user_count", "accounts_active":
			if n := f.int(key); n > 0 {
				s.ActiveUserCount = n
			}
		case "over18":
			s.Over18 = f.bool(key)
		case "subreddit_type":
			s.SubredditType = f.str(key)
		case "url":
			s.URL = f.str(key)
		case "icon_img":
			s.IconImg = unescape(f.str(key))
		case "banner_img":
			s.BannerImg = unescape(f.str(key))
		case "user_is_subscriber":
			s.UserIsSubscriber = f.bool(key)
		case "quarantine":
			s.Quarantine = f.bool(key)
		case "lang":
			s.Lang = f.str(key)
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	identity(&s.Identity, model.KindSubreddit)
	return s
}

// account decodes a user. The wire "name" is the username, so the fullname
// is always derived from the id.
func (d *Decoder) account(in *jlexer.Lexer) *model.Account {
	a := &model.Account{}
	f := d.fields(in, model.KindAccount)

	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			a.ID = f.str(key)
		case "name":
			a.Username = f.str(key)
		case "created_utc":
			a.CreatedAt = f.time(key)
		case "link_karma":
			a.LinkKarma = f.int(key)
		case "comment_karma":
			a.CommentKarma = f.int(key)
		case "total_karma":
			a.TotalKarma = f.int(key)
		case "is_gold":
			a.IsGold = f.bool(key)
		case "is_mod":
			a.IsMod = f.bool(key)
		case "verified":
			a.Verified = f.bool(key)
		case "is_employee":
			a.IsEmployee = f.bool(key)
		case "is_suspended":
			a.IsSuspended = f.bool(key)
		case "icon_img":
			a.IconImg = unescape(f.str(key))
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	if a.ID != "" {
		a.Name = model.Fullname(model.KindAccount, a.ID)
	}
	if a.TotalKarma == 0 {
		a.TotalKarma = a.LinkKarma + a.CommentKarma
	}
	return a
}
