package model

type Image struct {
	URL    string
	Width  int
	Height int
}

// PreviewImage is one preview with its resolution ladder, smallest first.
type PreviewImage struct {
	ID          string
	Source      Image
	Resolutions []Image
	Variants    map[string]PreviewImage
}

type Preview struct {
	Enabled bool
	Images  []PreviewImage
}

// Best returns the largest resolution of the first image that is at most
// maxWidth wide, falling back to the source.
func (p *Preview) Best(maxWidth int) (Image, bool) {
	if p == nil || len(p.Images) == 0 {
		return Image{}, false
	}
	img := p.Images[0]
	best := img.Source
	found := best.URL != "" && (maxWidth <= 0 || best.Width <= maxWidth)
	if found {
		return best, true
	}
	for _, r := range img.Resolutions {
		if r.Width <= maxWidth {
			best, found = r, true
		}
	}
	return best, found
}

type RedditVideo struct {
	FallbackURL string
	HLSURL      string
	DashURL     string
	Width       int
	Height      int
	Duration    int
	IsGIF       bool
}

type OEmbed struct {
	Type            string
	ProviderName    string
	Title           string
	HTML            string
	ThumbnailURL    string
	ThumbnailWidth  int
	ThumbnailHeight int
	Width           int
	Height          int
}

type Media struct {
	Type        string
	RedditVideo *RedditVideo
	OEmbed      *OEmbed
}
