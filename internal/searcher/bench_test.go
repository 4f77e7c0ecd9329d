package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
)

func benchEngine(b *testing.B, cacheEnabled bool) *Engine {
	b.Helper()
	cfg := config.Default()
	cfg.Cache.Enabled = cacheEnabled
	brands := []string{"Sony", "JBL", "boAt", "Samsung", "Apple"}
	types := []string{"Bluetooth Speaker", "Headphones", "Mobile Phone", "Laptop"}
	items := make([]*catalog.Item, 5000)
	for i := range items {
		items[i] = catalog.NewItem(fmt.Sprintf("item-%d", i), map[string]string{
			"Name":  fmt.Sprintf("%s %s %d", brands[i%len(brands)], types[i%len(types)], i),
			"Brand": brands[i%len(brands)],
			"Type":  types[i%len(types)],
		})
	}
	idx := indexer.NewEngine(cfg.Index, nil)
	e, err := Build(cfg, idx, nil, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(e.Close)
	if _, err := idx.Rebuild(context.Background(), catalog.NewStore(items)); err != nil {
		b.Fatal(err)
	}
	return e
}

func BenchmarkSearch(b *testing.B) {
	for _, cached := range []bool{false, true} {
		b.Run(fmt.Sprintf("cache=%v", cached), func(b *testing.B) {
			e := benchEngine(b, cached)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.Search(ctx, Request{Query: "sony bluetooth speaker"}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	e := benchEngine(b, false)
	queries := []string{"bluetooth speaker", "headphones", "samsung phone", "apple laptop"}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := e.Search(context.Background(), Request{Query: queries[i%len(queries)]}); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

func BenchmarkSearchBoolean(b *testing.B) {
	e := benchEngine(b, false)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.SearchBoolean(context.Background(), BooleanRequest{Expression: "speaker OR headphones NOT jbl"}); err != nil {
			b.Fatal(err)
		}
	}
}
