package mission

import (
	"maps"
	"slices"
	"strings"
)

// Surface is the platform a piece of content targets.
type Surface string

const (
	SurfaceYouTube   Surface = "youtube"
	SurfaceShorts    Surface = "shorts"
	SurfaceTikTok    Surface = "tiktok"
	SurfaceReels     Surface = "reels"
	SurfaceInstagram Surface = "instagram"
	SurfaceWeb       Surface = "web"
)

// aspectRatios maps each known surface to its native frame.
var aspectRatios = map[Surface]string{
	SurfaceYouTube:   "16:9",
	SurfaceWeb:       "16:9",
	SurfaceShorts:    "9:16",
	SurfaceTikTok:    "9:16",
	SurfaceReels:     "9:16",
	SurfaceInstagram: "1:1",
}

// KnownSurfaces returns the accepted surface names in sorted order.
func KnownSurfaces() []string {
	out := make([]string, 0, len(aspectRatios))
	for s := range aspectRatios {
		out = append(out, string(s))
	}
	slices.Sort(out)
	return out
}

// Request is the caller-facing description of a mission. It is what a
// mission file or an API body decodes into.
type Request struct {
	Mission         string            `yaml:"mission" json:"mission"`
	DurationSeconds int               `yaml:"duration" json:"duration"`
	Surface         string            `yaml:"surface,omitempty" json:"surface,omitempty"`
	Audience        string            `yaml:"audience,omitempty" json:"audience,omitempty"`
	Extra           map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
	// Overrides pins topic values; overridden topics skip negotiation.
	Overrides map[string]string `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	// Topics restricts negotiation to the listed topics. Empty means all.
	Topics []string `yaml:"topics,omitempty" json:"topics,omitempty"`
}

// Intent is an immutable, normalized mission. Build one with NewIntent.
type Intent struct {
	mission   string
	duration  int
	surface   Surface
	audience  string
	extra     map[string]string
	overrides map[string]string
	topics    []string
}

// NewIntent normalizes r into an Intent. Maps and slices are copied so later
// changes to r do not leak in. NewIntent does not validate; the Analyzer does.
func NewIntent(r Request) *Intent {
	return &Intent{
		mission:   strings.TrimSpace(r.Mission),
		duration:  r.DurationSeconds,
		surface:   Surface(strings.ToLower(strings.TrimSpace(r.Surface))),
		audience:  strings.ToLower(strings.TrimSpace(r.Audience)),
		extra:     maps.Clone(r.Extra),
		overrides: maps.Clone(r.Overrides),
		topics:    slices.Clone(r.Topics),
	}
}

// Mission returns the free-form mission text.
func (i *Intent) Mission() string { return i.mission }

// DurationSeconds returns the requested content length.
func (i *Intent) DurationSeconds() int { return i.duration }

// Surface returns the normalized target surface, possibly empty.
func (i *Intent) Surface() Surface { return i.surface }

// Audience returns the normalized audience tag, possibly empty.
func (i *Intent) Audience() string { return i.audience }

// Extra returns a free-form constraint.
func (i *Intent) Extra(key string) (string, bool) {
	v, ok := i.extra[key]
	return v, ok
}

// Override returns the pinned value for a topic.
func (i *Intent) Override(topicID string) (string, bool) {
	v, ok := i.overrides[topicID]
	return v, ok
}

// Overrides returns a copy of every override.
func (i *Intent) Overrides() map[string]string { return maps.Clone(i.overrides) }

// Topics returns a copy of the explicit topic selection.
func (i *Intent) Topics() []string { return slices.Clone(i.topics) }

// Tags returns the constraint tags used for persona matching.
func (i *Intent) Tags() []string {
	var tags []string
	if i.surface != "" {
		tags = append(tags, string(i.surface))
	}
	if i.audience != "" {
		tags = append(tags, i.audience)
	}
	return tags
}

// Request converts the intent back to its caller-facing form.
func (i *Intent) Request() Request {
	return Request{
		Mission:         i.mission,
		DurationSeconds: i.duration,
		Surface:         string(i.surface),
		Audience:        i.audience,
		Extra:           maps.Clone(i.extra),
		Overrides:       maps.Clone(i.overrides),
		Topics:          slices.Clone(i.topics),
	}
}
