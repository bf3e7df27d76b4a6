package decode

import (
	"html"
	"strings"

	"github.com/mailru/easyjson/jlexer"

	"github.com/alphabot-ai/threadline/internal/model"
)

const kindMedia model.Kind = "media"

// unescape undoes the HTML entity encoding the API applies to URLs when
// raw_json is not requested.
func unescape(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}

func (d *Decoder) preview(in *jlexer.Lexer) *model.Preview {
	p := &model.Preview{}
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "enabled":
			p.Enabled = f.bool(key)
		case "images":
			d.array(in, func() {
				if img, ok := d.previewImage(in); ok {
					p.Images = append(p.Images, img)
				}
			})
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	return p
}

func (d *Decoder) previewImage(in *jlexer.Lexer) (model.PreviewImage, bool) {
	var img model.PreviewImage
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "id":
			img.ID = f.str(key)
		case "source":
			img.Source, _ = d.image(in)
		case "resolutions":
			d.array(in, func() {
				if r, ok := d.image(in); ok {
					img.Resolutions = append(img.Resolutions, r)
				}
			})
		case "variants":
			d.object(in, func(key string) {
				name := strings.Clone(key)
				if v, ok := d.previewImage(in); ok {
					if img.Variants == nil {
						img.Variants = make(map[string]model.PreviewImage)
					}
					img.Variants[name] = v
				}
			})
		default:
			in.SkipRecursive()
		}
	})
	return img, ok
}

func (d *Decoder) image(in *jlexer.Lexer) (model.Image, bool) {
	var img model.Image
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "url":
			img.URL = unescape(f.str(key))
		case "width":
			img.Width = f.int(key)
		case "height":
			img.Height = f.int(key)
		default:
			in.SkipRecursive()
		}
	})
	return img, ok && img.URL != ""
}

func (d *Decoder) media(in *jlexer.Lexer) *model.Media {
	m := &model.Media{}
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "type":
			m.Type = f.str(key)
		case "reddit_video":
			m.RedditVideo = d.video(in)
		case "oembed":
			m.OEmbed = d.oembed(in)
		default:
			in.SkipRecursive()
		}
	})
	if !ok || (m.RedditVideo == nil && m.OEmbed == nil) {
		return nil
	}
	return m
}

func (d *Decoder) video(in *jlexer.Lexer) *model.RedditVideo {
	v := &model.RedditVideo{}
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "fallback_url":
			v.FallbackURL = unescape(f.str(key))
		case "hls_url":
			v.HLSURL = unescape(f.str(key))
		case "dash_url":
			v.DashURL = unescape(f.str(key))
		case "width":
			v.Width = f.int(key)
		case "height":
			v.Height = f.int(key)
		case "duration":
			v.Duration = f.int(key)
		case "is_gif":
			v.IsGIF = f.bool(key)
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	return v
}

func (d *Decoder) oembed(in *jlexer.Lexer) *model.OEmbed {
	o := &model.OEmbed{}
	f := d.fields(in, kindMedia)
	ok := d.object(in, func(key string) {
		switch key {
		case "type":
			o.Type = f.str(key)
		case "title":
			o.Title = f.str(key)
		case "provider_name":
			o.ProviderName = f.str(key)
		case "thumbnail_width":
			o.ThumbnailWidth = f.int(key)
		case "thumbnail_height":
			o.ThumbnailHeight = f.int(key)
		case "html":
			o.HTML = f.str(key)
		case "thumbnail_url":
			o.ThumbnailURL = unescape(f.str(key))
		case "width":
			o.Width = f.int(key)
		case "height":
			o.Height = f.int(key)
		default:
			in.SkipRecursive()
		}
	})
	if !ok {
		return nil
	}
	return o
}
