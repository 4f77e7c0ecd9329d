package strategy

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

func build(t *testing.T, items ...*catalog.Item) *index.Index {
	t.Helper()
	idx, warnings := index.Build(items, tokenizer.Default(), index.BuildOptions{})
	require.Empty(t, warnings)
	return idx
}

func speakerCatalog(t *testing.T) *index.Index {
	return build(t,
		catalog.NewItem("A", map[string]string{"Brand": "Sony", "Type": "Bluetooth Speaker"}),
		catalog.NewItem("B", map[string]string{"Brand": "JBL", "Type": "Headphones"}),
	)
}

func query(terms ...string) understand.NormalizedQuery {
	return understand.NormalizedQuery{Terms: terms, Intent: understand.IntentNone}
}

func score(t *testing.T, s Strategy, q understand.NormalizedQuery, idx *index.Index) Scores {
	t.Helper()
	scores, err := s.Score(q, idx, Candidates(q, idx))
	require.NoError(t, err)
	return scores
}

func TestLexical_BluetoothSpeakerScenario(t *testing.T) {
	t.Parallel()

	idx := speakerCatalog(t)
	scores := score(t, LexicalOverlap{}, query("bluetooth", "speaker"), idx)

	assert.Equal(t, Scores{"A": 1.0}, scores)
}

func TestLexical_PartialAndExpansionCredit(t *testing.T) {
	t.Parallel()

	idx := build(t,
		catalog.NewItem("1", map[string]string{"Name": "wireless earbuds"}),
		catalog.NewItem("2", map[string]string{"Name": "bluetooth earbuds"}),
		catalog.NewItem("3", map[string]string{"Name": "earbuds"}),
	)
	q := understand.NormalizedQuery{
		Terms:      []string{"bluetooth", "earbuds"},
		Expansions: []understand.Expansion{{Term: "wireless", Source: "bluetooth", Weight: 0.7}},
	}
	scores := score(t, LexicalOverlap{}, q, idx)

	assert.InDelta(t, (0.7+1)/2, scores["1"], 1e-9)
	assert.InDelta(t, 1.0, scores["2"], 1e-9)
	assert.InDelta(t, 0.5, scores["3"], 1e-9)
}

func TestTFIDF_NonNegative(t *testing.T) {
	t.Parallel()

	idx := build(t,
		catalog.NewItem("1", map[string]string{"Name": "usb cable usb"}),
		catalog.NewItem("2", map[string]string{"Name": "usb charger"}),
		catalog.NewItem("3", map[string]string{"Name": "usb hub"}),
	)
	scores := score(t, TFIDFScorer{}, query("usb", "cable", "hub"), idx)
	require.Len(t, scores, 3)
	for id, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, id)
	}
	// "usb" is everywhere so only the rarer terms move the score.
	assert.Zero(t, scores["2"])
	assert.InDelta(t, (1.0/3.0)*math.Log(3), scores["1"], 1e-9)
}

func TestIDF_Properties(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 20; n++ {
		for df := 0; df <= n; df++ {
			idf := IDF(n, df)
			assert.GreaterOrEqual(t, idf, 0.0)
			if df == n {
				assert.Zero(t, idf, "n=%d df=%d", n, df)
			} else {
				assert.Greater(t, idf, 0.0, "n=%d df=%d", n, df)
			}
		}
	}
	assert.Zero(t, IDF(0, 0))
}

func TestBM25_PrefersShorterItemsAndRarerTerms(t *testing.T) {
	t.Parallel()

	idx := build(t,
		catalog.NewItem("short", map[string]string{"Name": "speaker"}),
		catalog.NewItem("long", map[string]string{"Name": "speaker with a very long marketing description attached"}),
		catalog.NewItem("other", map[string]string{"Name": "cable"}),
	)
	s := BM25Scorer{K1: 1.2, B: 0.75}
	scores := score(t, s, query("speaker"), idx)

	require.Len(t, scores, 2)
	assert.Greater(t, scores["short"], scores["long"])
	assert.Greater(t, BM25IDF(10, 1), BM25IDF(10, 5))
	assert.GreaterOrEqual(t, BM25IDF(10, 10), 0.0)
}

func TestBM25_ParametersAreHonoured(t *testing.T) {
	t.Parallel()

	idx := build(t,
		catalog.NewItem("short", map[string]string{"Name": "speaker"}),
		catalog.NewItem("long", map[string]string{"Name": "speaker speaker plus many more words here"}),
	)
	// With b=0 length normalisation is off and higher tf wins.
	scores := score(t, BM25Scorer{K1: 1.2, B: 0}, query("speaker"), idx)
	assert.Greater(t, scores["long"], scores["short"])
}

func TestJaccard_SymmetricAndReflexive(t *testing.T) {
	t.Parallel()

	sets := []map[string]struct{}{
		{},
		{"a": {}},
		{"a": {}, "b": {}},
		{"b": {}, "c": {}, "d": {}},
	}
	for _, a := range sets {
		assert.Equal(t, 1.0, JaccardSimilarity(a, a))
		for _, b := range sets {
			assert.Equal(t, JaccardSimilarity(a, b), JaccardSimilarity(b, a))
		}
	}
	assert.InDelta(t, 0.25, JaccardSimilarity(sets[2], sets[3]), 1e-9)
}

func TestJaccard_FloorAndCeiling(t *testing.T) {
	t.Parallel()

	items := make([]*catalog.Item, 0, 12)
	for i := 0; i < 10; i++ {
		items = append(items, catalog.NewItem(fmt.Sprintf("i%02d", i), map[string]string{"Name": "lamp"}))
	}
	items = append(items, catalog.NewItem("noisy", map[string]string{"Name": "lamp a b c d e f g h i j k"}))
	idx := build(t, items...)

	full := score(t, JaccardApprox{Floor: 0.1, Ceiling: 1000}, query("lamp"), idx)
	assert.Len(t, full, 10, "noisy item falls below the floor")
	assert.NotContains(t, full, "noisy")

	capped := score(t, JaccardApprox{Floor: 0.1, Ceiling: 3}, query("lamp"), idx)
	assert.Equal(t, Scores{"i00": 1, "i01": 1, "i02": 1}, capped)
}

func TestStrategies_EmptyIndexAndNoMatch(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(config.Default().Strategies)
	require.NoError(t, err)
	empty := index.Empty()
	idx := speakerCatalog(t)
	for _, id := range AllIDs() {
		s, ok := reg.Get(id)
		require.True(t, ok)

		scores, err := s.Score(query("speaker"), empty, nil)
		require.NoError(t, err, id)
		assert.Empty(t, scores, id)

		q := query("zzz")
		scores, err = s.Score(q, idx, Candidates(q, idx))
		require.NoError(t, err, id)
		assert.Empty(t, scores, id)
	}
}

func TestCandidates_LoadOrderUnion(t *testing.T) {
	t.Parallel()

	idx := build(t,
		catalog.NewItem("z", map[string]string{"Name": "cable"}),
		catalog.NewItem("a", map[string]string{"Name": "charger"}),
		catalog.NewItem("m", map[string]string{"Name": "stand"}),
		catalog.NewItem("b", map[string]string{"Name": "adapter cable"}),
	)
	q := understand.NormalizedQuery{
		Terms:      []string{"charger", "cable"},
		Expansions: []understand.Expansion{{Term: "adapter", Source: "charger", Weight: 0.7}},
	}
	assert.Equal(t, []string{"z", "a", "b"}, Candidates(q, idx))
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(config.Default().Strategies)
	require.NoError(t, err)

	ids, err := reg.Resolve([]string{"jaccard", "BM25", "bm25"})
	require.NoError(t, err)
	assert.Equal(t, []ID{BM25, Jaccard}, ids)

	ids, err = reg.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, AllIDs(), ids)

	_, err = reg.Resolve([]string{"vector"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownStrategy)
}

func TestNewRegistry_RejectsUnknownDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Strategies
	cfg.Default = []string{"lexical", "psychic"}
	_, err := NewRegistry(cfg)
	assert.ErrorIs(t, err, apperrors.ErrUnknownStrategy)
}
