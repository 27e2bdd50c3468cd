package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sovereign/internal/domain"
)

// Producer yields one advisor's position for a decision. Implementations may
// be humans, rule engines or model-backed services; the core does not care.
// Any network or model call must be isolated behind a timeout by the
// producer, never by the core.
type Producer interface {
	Produce(ctx context.Context, dctx domain.DecisionContext, question string) (domain.Position, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, dctx domain.DecisionContext, question string) (domain.Position, error)

func (f ProducerFunc) Produce(ctx context.Context, dctx domain.DecisionContext, question string) (domain.Position, error) {
	return f(ctx, dctx, question)
}

// Static wraps a precomputed position as a producer.
func Static(p domain.Position) Producer {
	return ProducerFunc(func(context.Context, domain.DecisionContext, string) (domain.Position, error) {
		return p, nil
	})
}

// ObjectionProducer yields an advisor's objections after reading the full
// position set. 0-2 objections per advisor; more fail validation outright.
type ObjectionProducer interface {
	Object(ctx context.Context, dctx domain.DecisionContext, positions []domain.Position, advisor string) ([]domain.Objection, error)
}

// ObjectionProducerFunc adapts a function to the ObjectionProducer interface.
type ObjectionProducerFunc func(ctx context.Context, dctx domain.DecisionContext, positions []domain.Position, advisor string) ([]domain.Objection, error)

func (f ObjectionProducerFunc) Object(ctx context.Context, dctx domain.DecisionContext, positions []domain.Position, advisor string) ([]domain.Objection, error) {
	return f(ctx, dctx, positions, advisor)
}

// NoObjections is an ObjectionProducer that never objects.
var NoObjections = ObjectionProducerFunc(func(context.Context, domain.DecisionContext, []domain.Position, string) ([]domain.Objection, error) {
	return nil, nil
})

type producedPosition struct {
	advisor  string
	position domain.Position
	err      error
}

// gatherPositions fans the producer calls out in parallel and collects the
// results in advisor-name order. A producer error or panic excludes that
// advisor for the round; it never halts the others.
func gatherPositions(ctx context.Context, producers map[string]Producer, advisors []string, dctx domain.DecisionContext, question string) []producedPosition {
	results := make([]producedPosition, len(advisors))
	var wg sync.WaitGroup
	for i, name := range advisors {
		producer, ok := producers[name]
		if !ok {
			results[i] = producedPosition{advisor: name, err: fmt.Errorf("no producer for advisor %s", name)}
			continue
		}
		wg.Add(1)
		go func(i int, name string, producer Producer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = producedPosition{advisor: name, err: fmt.Errorf("producer for %s panicked: %v", name, r)}
				}
			}()
			p, err := producer.Produce(ctx, dctx, question)
			results[i] = producedPosition{advisor: name, position: p, err: err}
		}(i, name, producer)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].advisor < results[j].advisor })
	return results
}
