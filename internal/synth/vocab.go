package synth

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
)

// Years bounds the release year embedded in synthetic text (inclusive).
type Years struct {
	Min int
	Max int
}

func (y Years) pick(r *rand.Rand) int {
	if y.Max <= y.Min {
		return y.Min
	}
	return y.Min + r.Intn(y.Max-y.Min+1)
}

// Vocabulary produces the content of one synthetic document from r. It must
// only draw randomness from r so a seeded stream stays reproducible.
type Vocabulary interface {
	Text(r *rand.Rand, years Years) string
	Meta(r *rand.Rand, years Years) wire.MetaRecord
}

func choice(r *rand.Rand, pool []string) string {
	return pool[r.Intn(len(pool))]
}

// sample returns k distinct elements of pool in random order.
func sample(r *rand.Rand, pool []string, k int) []string {
	k = min(k, len(pool))
	idx := r.Perm(len(pool))[:k]
	out := make([]string, k)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Catalog is the built-in music-catalog vocabulary.
type Catalog struct{}

var (
	catalogAdj       = []string{"Electric", "Neon", "Dark", "Velvet", "Psychedelic", "Frozen", "Digital", "Golden", "Burning", "Mystic"}
	catalogNoun      = []string{"Dreams", "Storm", "Echoes", "City", "Machine", "Revolution", "Night", "Sky", "Fire", "Ocean"}
	catalogVerb      = []string{"Burning", "Rising", "Falling", "Dancing", "Shining", "Crashing"}
	catalogArtist1   = []string{"DJ", "MC", "The", "Captain", "Saint", "Professor"}
	catalogArtist2   = []string{"Phoenix", "Shadow", "Machine", "Groove", "Echo", "Vision"}
	catalogGenres    = []string{"techno", "acid", "electro", "house", "breaks"}
	catalogSubgenres = []string{"raw", "hypnotic", "groovy", "melodic", "deep"}
	catalogTags      = []string{"club", "festival", "underground", "afterhours", "warehouse"}
	catalogBlurbs    = []string{"recorded live in berlin", "sleazy warehouse cut", "drone-laden roller"}
)

func (Catalog) title(r *rand.Rand) string {
	return fmt.Sprintf("%s %s %s", choice(r, catalogAdj), choice(r, catalogNoun), choice(r, catalogVerb))
}

func (Catalog) artist(r *rand.Rand) string {
	return choice(r, catalogArtist1) + " " + choice(r, catalogArtist2)
}

func (Catalog) genre(r *rand.Rand) string {
	return choice(r, catalogGenres) + ":" + choice(r, catalogSubgenres)
}

func (Catalog) tags(r *rand.Rand) string {
	return strings.Join(sample(r, catalogTags, 2+r.Intn(2)), " ")
}

// Text renders one catalog line: title, artist and year followed by genre, tags and a blurb.
func (c Catalog) Text(r *rand.Rand, years Years) string {
	title := c.title(r)
	artist := c.artist(r)
	year := years.pick(r)
	genre := c.genre(r)
	tags := c.tags(r)
	blurb := choice(r, catalogBlurbs)
	return fmt.Sprintf("%s — %s (%d) genre:%s tags:%s | %s", title, artist, year, genre, tags, blurb)
}

func (c Catalog) Meta(r *rand.Rand, years Years) wire.MetaRecord {
	title := c.title(r)
	author := c.artist(r)
	genre := c.genre(r)
	genres := genre + " " + c.tags(r)
	year := years.pick(r)
	slug := strings.ToLower(strings.ReplaceAll(title, " ", "-"))
	return wire.MetaRecord{
		Search: fmt.Sprintf("%s %s %s %d", title, author, genres, year),
		Title:  title,
		Author: author,
		Genres: genres,
		URL:    "https://example.com/" + slug,
		URI:    fmt.Sprintf("disco://%s/%s", strings.SplitN(genre, ":", 2)[0], slug),
	}
}

// WordList draws every slot from a flat word list split into six category
// slices: adjectives, nouns, verbs, two artist-name parts and a misc pool
// used for genres, tags and blurbs.
type WordList struct {
	words []string
	parts [6][]string
}

// MinWords is the smallest list NewWordList accepts.
const MinWords = 6

// NewWordList shuffles words with seed and splits them into categories. The
// same words and seed always give the same split.
func NewWordList(words []string, seed int64) (*WordList, error) {
	if len(words) < MinWords {
		return nil, fmt.Errorf("word list has %d words, need at least %d", len(words), MinWords)
	}
	shuffled := append([]string(nil), words...)
	sort.Strings(shuffled)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	wl := &WordList{words: shuffled}
	n := len(shuffled) / 6
	for i := 0; i < 5; i++ {
		wl.parts[i] = shuffled[i*n : (i+1)*n]
	}
	wl.parts[5] = shuffled[5*n:]
	return wl, nil
}

// Len returns the number of words in the list.
func (w *WordList) Len() int { return len(w.words) }

func (w *WordList) Text(r *rand.Rand, years Years) string {
	adj, noun, verb := choice(r, w.parts[0]), choice(r, w.parts[1]), choice(r, w.parts[2])
	a1, a2 := choice(r, w.parts[3]), choice(r, w.parts[4])
	year := years.pick(r)
	misc := w.parts[5]
	genre := choice(r, misc)
	tags := strings.Join(sample(r, misc, 5), " ")
	blurb := choice(r, misc)
	return fmt.Sprintf("%s %s %s — %s %s (%d) genre:%s tags:%s | %s", adj, noun, verb, a1, a2, year, genre, tags, blurb)
}

func (w *WordList) Meta(r *rand.Rand, _ Years) wire.MetaRecord {
	title := capitalize(choice(r, w.words)) + " " + capitalize(choice(r, w.words))
	author := capitalize(choice(r, w.words)) + " " + capitalize(choice(r, w.words))
	genres := strings.Join(sample(r, w.words, 3), " ")
	url := "https://example.com/" + choice(r, w.words)
	uri := fmt.Sprintf("disco://%s/%s", choice(r, w.words), choice(r, w.words))
	return wire.MetaRecord{
		Search: fmt.Sprintf("%s %s %s", title, author, genres),
		Title:  title,
		Author: author,
		Genres: genres,
		URL:    url,
		URI:    uri,
	}
}

// ReadWords reads one word per line, keeping lower-cased alphabetic words of
// at least three letters. Duplicates are removed and the result is sorted.
func ReadWords(rd io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if len(w) < 3 || !isAlpha(w) {
			continue
		}
		seen[w] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading word list: %w", err)
	}
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return words, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
