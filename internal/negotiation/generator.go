package negotiation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/util"
)

// ProviderGenerator speaks for personas through a text provider. Each turn
// becomes one prompt; the reply is parsed with ParseReply.
type ProviderGenerator struct {
	adapter provider.Adapter
}

// NewProviderGenerator creates a generator backed by a text adapter.
func NewProviderGenerator(adapter provider.Adapter) *ProviderGenerator {
	return &ProviderGenerator{adapter: adapter}
}

const systemPrompt = `You are one member of a panel of experts deciding a single aspect of a short video.
Reply with exactly three lines:
STANCE: agree | disagree | propose
CONFIDENCE: a number between 0 and 1
PAYLOAD: the option you back`

// Generate implements MessageGenerator.
func (g *ProviderGenerator) Generate(ctx context.Context, turn Turn) (Message, error) {
	art, err := g.adapter.GenerateText(ctx, provider.TextRequest{
		Prompt:    turnPrompt(turn),
		System:    systemPrompt,
		MaxTokens: 120,
		Params: map[string]string{
			provider.ParamTask:    provider.TaskNegotiate,
			provider.ParamPersona: turn.Persona.ID,
			provider.ParamTopic:   turn.Topic.ID,
			provider.ParamOptions: strings.Join(turn.Topic.Options, provider.OptionSeparator),
			provider.ParamAnchor:  turn.Anchor,
		},
	})
	if err != nil {
		return Message{}, err
	}
	msg, err := ParseReply(art.Content)
	if err != nil {
		return Message{}, err
	}
	msg.PersonaID = turn.Persona.ID
	return msg, nil
}

func turnPrompt(turn Turn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s (expertise: %s).\n", turn.Persona.Name, strings.Join(turn.Persona.Expertise, ", "))
	if in := turn.Intent; in != nil {
		fmt.Fprintf(&sb, "Mission: %s\n", in.Mission())
		fmt.Fprintf(&sb, "Duration: %ds. Surface: %s.", in.DurationSeconds(), in.Surface())
		if aud := in.Audience(); aud != "" {
			fmt.Fprintf(&sb, " Audience: %s.", aud)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(turn.Prior) > 0 {
		sb.WriteString("Already decided:\n")
		for _, d := range turn.Prior {
			fmt.Fprintf(&sb, "- %s: %s\n", d.TopicID, d.Value)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Decide: %s\nOptions: %s\n", turn.Topic.Title, strings.Join(turn.Topic.Options, ", "))

	for _, r := range turn.History {
		fmt.Fprintf(&sb, "\nRound %d (leading %q, agreement %.2f):\n", r.Number, r.Leading, r.Score)
		for _, m := range r.Messages {
			if !m.Responded() {
				continue
			}
			fmt.Fprintf(&sb, "- %s %s %s\n", m.PersonaID, m.Stance, m.Payload)
		}
	}

	if turn.Anchor != "" {
		fmt.Fprintf(&sb, "\nThe panel is converging on %q. Agree, or propose an alternative.\n", turn.Anchor)
	} else {
		sb.WriteString("\nPropose the option you think fits best.\n")
	}
	return sb.String()
}

// ParseReply reads a STANCE/CONFIDENCE/PAYLOAD reply. Field names are
// case-insensitive, may appear in any order and may be wrapped in markdown
// emphasis; a percentage confidence is accepted. A reply without a
// recognisable stance is an error.
func ParseReply(text string) (Message, error) {
	var (
		msg       Message
		hasStance bool
	)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.Trim(strings.TrimSpace(key), "*-# "))
		value = strings.TrimSpace(value)

		switch key {
		case "STANCE":
			if s, ok := ParseStance(value); ok {
				msg.Stance = s
				hasStance = true
			}
		case "CONFIDENCE":
			msg.Confidence = parseConfidence(value)
		case "PAYLOAD", "CHOICE", "OPTION":
			msg.Payload = value
		}
	}
	if !hasStance {
		return Message{}, errors.NewValidationError("reply has no stance").WithField("stance").WithValue(util.Cell(text, 80))
	}
	return msg, nil
}

// parseConfidence reads a confidence in [0, 1]. A "%" suffix, or a bare value
// in [2, 100], is read as a percentage; anything else is clamped.
func parseConfidence(s string) float64 {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if percent || (v >= 2 && v <= 100) {
		v /= 100
	}
	return clamp(v)
}

// DeliberativeGenerator is an offline, deterministic stand-in for a panel of
// experts. Each persona ranks the topic's options by a stable hash of
// (persona, topic, option), boosted by options the mission text names and by
// options that share a word with the persona's expertise. A persona agrees
// with the anchor when it is among its top-k options and otherwise proposes
// its favourite.
type DeliberativeGenerator struct {
	topK int
}

// NewDeliberativeGenerator creates a generator accepting anchors within each
// persona's top-k preferences.
func NewDeliberativeGenerator(topK int) *DeliberativeGenerator {
	return &DeliberativeGenerator{topK: max(topK, 1)}
}

// Generate implements MessageGenerator.
func (g *DeliberativeGenerator) Generate(ctx context.Context, turn Turn) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	options := turn.Topic.Options
	if len(options) == 0 {
		return Message{PersonaID: turn.Persona.ID, Stance: StanceAbstain}, nil
	}

	ranked := g.Preferences(turn)
	confidence := func(rank int) float64 {
		if len(ranked) == 1 {
			return 0.95
		}
		return math.Round((0.55+0.4*float64(len(ranked)-1-rank)/float64(len(ranked)-1))*100) / 100
	}

	if turn.Anchor != "" {
		for rank, o := range ranked {
			if o != turn.Anchor {
				continue
			}
			if rank < g.topK {
				return Message{PersonaID: turn.Persona.ID, Stance: StanceAgree, Payload: o, Confidence: confidence(rank)}, nil
			}
			break
		}
	}
	return Message{PersonaID: turn.Persona.ID, Stance: StancePropose, Payload: ranked[0], Confidence: confidence(0)}, nil
}

// Preferences returns the topic's options ordered from the persona's
// favourite down.
func (g *DeliberativeGenerator) Preferences(turn Turn) []string {
	missionText := ""
	if turn.Intent != nil {
		missionText = strings.ToLower(turn.Intent.Mission())
	}

	type pref struct {
		option string
		score  float64
	}
	prefs := make([]pref, 0, len(turn.Topic.Options))
	for _, o := range turn.Topic.Options {
		score := float64(hash32(turn.Persona.ID, turn.Topic.ID, o)) / math.MaxUint32
		if missionText != "" && strings.Contains(missionText, strings.ToLower(o)) {
			score += 1
		}
		for _, tag := range turn.Persona.Expertise {
			if sharesWord(o, tag) {
				score += 0.5
				break
			}
		}
		prefs = append(prefs, pref{option: o, score: score})
	}
	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].score > prefs[j].score })

	out := make([]string, len(prefs))
	for i, p := range prefs {
		out[i] = p.option
	}
	return out
}

func sharesWord(option, tag string) bool {
	tag = strings.ToLower(tag)
	for _, w := range strings.FieldsFunc(strings.ToLower(option), func(r rune) bool { return r == '-' || r == ' ' || r == '_' }) {
		if w == tag {
			return true
		}
	}
	return false
}

func hash32(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum32()
}

var (
	_ MessageGenerator = (*ProviderGenerator)(nil)
	_ MessageGenerator = (*DeliberativeGenerator)(nil)
	_ MessageGenerator = GeneratorFunc(nil)
)
