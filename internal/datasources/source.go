// Package datasources materializes raw tabular rows for the pipeline,
// regardless of origin. Every adapter produces the same thing: a raw table
// plus the column mapping configured for its source. The core stays agnostic
// to transport.
package datasources

import (
	"context"
	"fmt"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/normalize"
)

// RawTable is one source's rows before normalization.
type RawTable struct {
	Source string
	Rows   []normalize.RawRow
}

// Fetcher loads a raw table for one configured source.
type Fetcher interface {
	Fetch(ctx context.Context, src config.SourceMapping) (RawTable, error)
}

// Loader routes each source kind to its adapter.
type Loader struct {
	csv    *CSVReader
	portal *PortalClient
}

// NewLoader wires the adapters. The portal client may be nil when no
// portal-api sources are configured.
func NewLoader(csv *CSVReader, portal *PortalClient) *Loader {
	return &Loader{csv: csv, portal: portal}
}

// Fetch materializes the raw table for a source descriptor.
func (l *Loader) Fetch(ctx context.Context, src config.SourceMapping) (RawTable, error) {
	switch src.Kind {
	case config.SourceCensus, config.SourceSurvey:
		return l.csv.Fetch(ctx, src)
	case config.SourcePortalAPI:
		if l.portal == nil {
			return RawTable{}, fmt.Errorf("source %q needs a portal client, none configured", src.Name)
		}
		return l.portal.Fetch(ctx, src)
	default:
		return RawTable{}, fmt.Errorf("source %q has unsupported kind %q", src.Name, src.Kind)
	}
}
