package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// pageTally counts sampled pages per site.
type pageTally struct {
	pages map[string]int64
}

func (p *pageTally) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StagePageDone {
			p.pages[evt.Site] += evt.Pages
		}
	}
	return nil
}

func (p *pageTally) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit reports crawl progress for one scan and reads the tally
// once Close has flushed the buffer.
func ExampleHub_Emit() {
	tally := &pageTally{pages: map[string]int64{}}
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 4,
		MaxBatchWait:   time.Second,
	}, tally)

	scan := UUIDToBytes(uuid.MustParse("3f0c9a52-7d1e-4b8a-9c61-0a5be1d2c4e7"))
	started := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	hub.Emit(Event{ScanID: scan, TS: started, Stage: StageScanStart})
	for i, page := range []string{"/", "/about", "/pricing"} {
		hub.Emit(Event{
			ScanID: scan,
			TS:     started.Add(time.Duration(i+1) * time.Second),
			Stage:  StagePageDone,
			Site:   "brand.example",
			URL:    "https://brand.example" + page,
			Depth:  min(i, 1),
			Pages:  1,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("brand.example pages sampled: %d\n", tally.pages["brand.example"])
	// Output:
	// brand.example pages sampled: 3
}

// ExampleSink adapts a function into a Sink that sums stylesheet and font
// bytes, skipping fetches that did not succeed.
func ExampleSink() {
	var downloaded int64
	assets := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageAssetDone && evt.StatusClass == Status2xx {
				downloaded += evt.Bytes
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Second,
	}, assets)

	scan := UUIDToBytes(uuid.MustParse("9b2e41d0-15c3-4f6a-8e27-d4c0f7a3b518"))
	fetched := time.Date(2026, 1, 5, 9, 0, 3, 0, time.UTC)
	for _, asset := range []struct {
		url    string
		status int
		bytes  int64
	}{
		{"https://cdn.brand.example/site.css", 200, 18432},
		{"https://cdn.brand.example/fonts/display.woff2", 200, 40960},
		{"https://cdn.brand.example/legacy.css", 404, 312},
	} {
		hub.Emit(Event{
			ScanID:      scan,
			TS:          fetched,
			Stage:       StageAssetDone,
			Site:        "brand.example",
			URL:         asset.url,
			StatusClass: ClassifyStatus(asset.status),
			Bytes:       asset.bytes,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("asset bytes kept: %d\n", downloaded)
	// Output:
	// asset bytes kept: 59392
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
