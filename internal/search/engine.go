package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/store"
)

// Relevance weights. Title matches count three times a body match; prefix
// and fuzzy matches are discounted against exact term hits.
const (
	titleBoost   = 3.0
	bodyBoost    = 1.0
	exactWeight  = 1.0
	prefixWeight = 0.375
	fuzzyWeight  = 0.45
)

// fuzzyBudget is the edit-distance budget for fuzzy term matching,
// relative to the query term length.
const fuzzyBudget = 0.2

// maxResults caps how many matches a single search returns.
const maxResults = 50

// SearchResult is one ranked search hit with its highlighted snippets.
type SearchResult struct {
	Chat model.Chat `json:"chat"`

	// Score is the raw relevance score.
	Score float64 `json:"score"`

	// Matches holds up to three highlighted snippets.
	Matches []string `json:"matches"`
}

// posting records how often a term occurs in each field of a document.
type posting struct {
	title int
	body  int
}

// document is one indexed chat with the term stats needed for removal.
type document struct {
	chat      model.Chat
	accountID string
	updatedAt int64
	terms     map[string]posting
}

// Engine maintains an in-memory inverted index over all stored chats. The
// index is disposable cache state: built lazily from the store on first
// use, invalidated whenever the stored-chat count diverges from the count
// at last build, and rebuilt from scratch on demand. All mutations are
// serialized behind the engine's lock.
type Engine struct {
	store store.Store

	mu               sync.RWMutex
	postings         map[string]map[string]posting
	docs             map[string]*document
	built            bool
	lastIndexedCount int
}

// NewEngine creates a search engine backed by the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{
		store:    s,
		postings: make(map[string]map[string]posting),
		docs:     make(map[string]*document),
	}
}

// Init builds the index from the store if it has not been built yet or if
// the stored-chat count differs from the count at last build. This is a
// heuristic staleness check, not precise dirty tracking.
func (e *Engine) Init(ctx context.Context) error {
	count, err := e.store.CountChats(ctx)
	if err != nil {
		return err
	}

	e.mu.RLock()
	current := e.built && count == e.lastIndexedCount
	e.mu.RUnlock()
	if current {
		return nil
	}

	chats, err := e.store.GetAllChats(ctx)
	if err != nil {
		return err
	}

	slog.Info("search: building index", "chats", len(chats))

	e.mu.Lock()
	defer e.mu.Unlock()

	e.postings = make(map[string]map[string]posting)
	e.docs = make(map[string]*document)
	for i := range chats {
		e.addLocked(chats[i])
	}
	e.built = true
	e.lastIndexedCount = len(chats)

	return nil
}

// Rebuild discards the index and rebuilds it from the store
// unconditionally.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	e.built = false
	e.lastIndexedCount = 0
	e.mu.Unlock()

	return e.Init(ctx)
}

// Add inserts or refreshes one chat in the index. When a document with
// the same id is already indexed, its old postings are removed first. An
// unbuilt index ignores the call; the chat is picked up by the next Init.
func (e *Engine) Add(chat model.Chat) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.built {
		return
	}

	if _, ok := e.docs[chat.ID]; ok {
		e.removeLocked(chat.ID)
	}
	e.addLocked(chat)
	e.lastIndexedCount = len(e.docs)
}

// Remove deletes a chat from the index. No-op if absent.
func (e *Engine) Remove(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.built {
		return
	}

	if _, ok := e.docs[chatID]; !ok {
		return
	}
	e.removeLocked(chatID)
	e.lastIndexedCount = len(e.docs)
}

// addLocked indexes one chat. Caller holds the write lock.
func (e *Engine) addLocked(chat model.Chat) {
	doc := &document{
		chat:      chat,
		accountID: chat.AccountID,
		updatedAt: chat.UpdatedAt,
		terms:     make(map[string]posting),
	}

	for _, term := range Tokenize(chat.Title) {
		p := doc.terms[term]
		p.title++
		doc.terms[term] = p
	}
	for _, term := range Tokenize(chat.FullText) {
		p := doc.terms[term]
		p.body++
		doc.terms[term] = p
	}

	for term, p := range doc.terms {
		byDoc, ok := e.postings[term]
		if !ok {
			byDoc = make(map[string]posting)
			e.postings[term] = byDoc
		}
		byDoc[chat.ID] = p
	}

	e.docs[chat.ID] = doc
}

// removeLocked drops one document's postings. Caller holds the write lock.
func (e *Engine) removeLocked(chatID string) {
	doc := e.docs[chatID]
	for term := range doc.terms {
		byDoc := e.postings[term]
		delete(byDoc, chatID)
		if len(byDoc) == 0 {
			delete(e.postings, term)
		}
	}
	delete(e.docs, chatID)
}

// Search runs a fuzzy, prefix-enabled, OR-combined query over the index,
// optionally restricted to the given account IDs. Results are truncated
// to the top matches by relevance, then re-ordered so that near-ties in
// score (relative difference under 20%) rank newer chats first. Each
// result carries up to three highlighted snippets.
//
// An empty or whitespace-only query returns no results without touching
// the index.
func (e *Engine) Search(
	ctx context.Context,
	query string,
	accountIDs []string,
) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if err := e.Init(ctx); err != nil {
		return nil, err
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var accountFilter map[string]bool
	if len(accountIDs) > 0 {
		accountFilter = make(map[string]bool, len(accountIDs))
		for _, id := range accountIDs {
			accountFilter[id] = true
		}
	}

	e.mu.RLock()
	scores := e.scoreLocked(terms)

	hits := make([]hit, 0, len(scores))
	for id, score := range scores {
		doc := e.docs[id]
		if accountFilter != nil && !accountFilter[doc.accountID] {
			continue
		}
		hits = append(hits, hit{id: id, score: score, updatedAt: doc.updatedAt})
	}
	e.mu.RUnlock()

	hits = rank(hits)

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		doc, ok := e.docs[h.id]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Chat:    doc.chat,
			Score:   h.score,
			Matches: extractMatches(doc.chat, query),
		})
	}

	return results, nil
}

// hit is one scored document before result assembly.
type hit struct {
	id        string
	score     float64
	updatedAt int64
}

// rank orders hits by relevance, truncates to the result cap, and then
// biases near-ties in score toward recency: for adjacent results whose
// relative score difference is under 20%, the newer chat wins.
func rank(hits []hit) []hit {
	// Deterministic relevance order before truncation.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].updatedAt != hits[j].updatedAt {
			return hits[i].updatedAt > hits[j].updatedAt
		}
		return hits[i].id < hits[j].id
	})

	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		scoreDiff := math.Abs(a.score-b.score) / math.Max(a.score, b.score)
		if scoreDiff < 0.2 {
			return a.updatedAt > b.updatedAt
		}
		return a.score > b.score
	})

	return hits
}

// scoreLocked accumulates OR-combined relevance scores for the query
// terms. Caller holds at least the read lock.
func (e *Engine) scoreLocked(terms []string) map[string]float64 {
	scores := make(map[string]float64)
	totalDocs := len(e.docs)
	if totalDocs == 0 {
		return scores
	}

	for _, term := range terms {
		maxDist := int(math.Round(float64(len(term)) * fuzzyBudget))

		for indexed, byDoc := range e.postings {
			weight := matchWeight(term, indexed, maxDist)
			if weight == 0 {
				continue
			}

			idf := math.Log(1 + float64(totalDocs)/float64(len(byDoc)))

			for docID, p := range byDoc {
				score := weight * idf *
					(titleBoost*float64(p.title) + bodyBoost*float64(p.body))
				scores[docID] += score
			}
		}
	}

	return scores
}

// matchWeight scores how well a query term matches an indexed term:
// exact > fuzzy > prefix, with fuzzy discounted by its edit distance.
// Returns 0 for no match.
func matchWeight(term, indexed string, maxDist int) float64 {
	if term == indexed {
		return exactWeight
	}

	if maxDist > 0 {
		if dist, ok := editDistanceWithin(term, indexed, maxDist); ok {
			return fuzzyWeight * (1 - float64(dist)/float64(len(term)))
		}
	}

	if strings.HasPrefix(indexed, term) {
		return prefixWeight
	}

	return 0
}

// editDistanceWithin computes the Levenshtein distance between a and b,
// reporting ok=false as soon as it exceeds maxDist.
func editDistanceWithin(a, b string, maxDist int) (int, bool) {
	if abs(len(a)-len(b)) > maxDist {
		return 0, false
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(min(curr[j-1]+1, prev[j]+1), prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > maxDist {
			return 0, false
		}
		prev, curr = curr, prev
	}

	if prev[len(b)] > maxDist {
		return 0, false
	}
	return prev[len(b)], true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// tokenSeparators is the punctuation class tokens are split on, in
// addition to whitespace.
const tokenSeparators = "-_.,!?;:'\"()[]{}"

// Tokenize lowercases text and splits it on whitespace and punctuation,
// discarding empty tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(tokenSeparators, r)
	})
}
