// Package optimize shrinks a built output document before it is written.
// Merging several sources often repeats the same font programs, images and
// resource dictionaries; identical indirect objects are stored once.
package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfmerge/builder"
)

type Config struct {
	// CombineDuplicateStreams merges streams with identical dictionaries
	// and bytes.
	CombineDuplicateStreams bool
	// CombineIdenticalIndirectObjects merges every identical indirect
	// object, streams included.
	CombineIdenticalIndirectObjects bool
}

// Stats reports what one pass removed.
type Stats struct {
	Streams int
	Objects int
}

func (s Stats) Removed() int { return s.Streams + s.Objects }

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config}
}

func (o *Optimizer) Optimize(ctx context.Context, doc *builder.Document) (Stats, error) {
	var stats Stats
	if doc == nil {
		return stats, nil
	}
	if o.config.CombineIdenticalIndirectObjects {
		if err := o.combineIdenticalIndirectObjects(ctx, doc, &stats); err != nil {
			return stats, fmt.Errorf("failed to combine identical indirect objects: %w", err)
		}
		return stats, nil
	}
	if o.config.CombineDuplicateStreams {
		if err := o.combineDuplicateStreams(ctx, doc, &stats); err != nil {
			return stats, fmt.Errorf("failed to combine duplicate streams: %w", err)
		}
	}
	return stats, nil
}
